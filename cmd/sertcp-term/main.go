// Command sertcp-term is a small interactive terminal for a serial
// device. Typed lines are sent to the device; received bytes are
// printed as they arrive. It works against physical ports, sertcp-client
// virtual devices and sertcp-echo devices alike.
//
// Usage:
//
//	sertcp-term [flags] <device-path>
//
// Flags:
//
//	-b int      Baud rate (default 9600)
//	-p string   Parity: N, E, O, M, S (default "N")
//	-crlf       Terminate sent lines with CRLF instead of LF
//
// Example:
//
//	sertcp-term -b 115200 /tmp/ttyV0
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/chzyer/readline"

	"github.com/sertcp/sertcp-go/pkg/relay"
	"github.com/sertcp/sertcp-go/pkg/serial"
)

var (
	baud   = flag.Int("b", 9600, "Baud rate")
	parity = flag.String("p", "N", "Parity: N, E, O, M, S")
	crlf   = flag.Bool("crlf", false, "Terminate sent lines with CRLF instead of LF")
)

func main() {
	flag.Parse()
	log.SetFlags(0)

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: sertcp-term [flags] <device-path>")
		flag.PrintDefaults()
		os.Exit(1)
	}

	var p serial.Parity
	if *parity != "" {
		p = serial.Parity((*parity)[0])
	}
	port, err := serial.Open(serial.Config{
		Device: flag.Arg(0),
		Baud:   *baud,
		Parity: p,
	})
	if err != nil {
		log.Fatalf("Failed to open %s: %v", flag.Arg(0), err)
	}
	defer port.Close()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		log.Fatalf("Failed to create terminal: %v", err)
	}
	defer rl.Close()

	fmt.Fprintf(rl.Stdout(), "Connected to %s at %d baud. Ctrl-D to exit.\n", port.Device(), *baud)

	// Receiver: print device output without disturbing the prompt.
	done := make(chan struct{})
	go func() {
		defer close(done)
		ep := port.Endpoint()
		buf := make([]byte, 4096)
		for {
			n, err := ep.ReadChunk(buf, 200*time.Millisecond)
			if errors.Is(err, relay.ErrTimeout) {
				continue
			}
			if err != nil || n == 0 {
				return
			}
			rl.Stdout().Write(buf[:n])
		}
	}()

	ending := "\n"
	if *crlf {
		ending = "\r\n"
	}

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			break
		}
		if _, err := port.Write([]byte(line + ending)); err != nil {
			fmt.Fprintf(rl.Stderr(), "Write failed: %v\n", err)
			break
		}
	}

	port.Close()
	<-done
}
