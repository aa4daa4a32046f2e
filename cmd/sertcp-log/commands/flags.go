package commands

import (
	"fmt"
	"strings"

	"github.com/sertcp/sertcp-go/pkg/log"
)

// ParseLayerFlag converts a -layer flag value to a log.Layer.
func ParseLayerFlag(s string) (log.Layer, error) {
	switch strings.ToLower(s) {
	case "transport":
		return log.LayerTransport, nil
	case "device":
		return log.LayerDevice, nil
	case "bridge":
		return log.LayerBridge, nil
	default:
		return 0, fmt.Errorf("unknown layer %q (transport, device, bridge)", s)
	}
}

// ParseDirectionFlag converts a -direction flag value to a log.Direction.
func ParseDirectionFlag(s string) (log.Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return log.DirectionIn, nil
	case "out":
		return log.DirectionOut, nil
	default:
		return 0, fmt.Errorf("unknown direction %q (in, out)", s)
	}
}

// ParseCategoryFlag converts a -category flag value to a log.Category.
func ParseCategoryFlag(s string) (log.Category, error) {
	switch strings.ToLower(s) {
	case "data":
		return log.CategoryData, nil
	case "state":
		return log.CategoryState, nil
	case "error":
		return log.CategoryError, nil
	default:
		return 0, fmt.Errorf("unknown category %q (data, state, error)", s)
	}
}
