package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mcdev12/brickrelay/go/internal/relay/protocol"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:12345", "relay TCP address")
	mode := flag.String("mode", "hola", "one of hola, player, spectador")
	name := flag.String("name", "probe", "player name sent with tipoCliente")
	watch := flag.String("watch", "", "player id to watch in spectador mode")
	interval := flag.Duration("interval", 500*time.Millisecond, "state interval in player mode")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := net.DialTimeout("tcp", *addr, 5*time.Second)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dial %s: %v\n", *addr, err)
		os.Exit(1)
	}
	defer conn.Close()
	context.AfterFunc(ctx, func() { conn.Close() })

	// Print everything the relay sends back
	frames := protocol.NewFrameReader(conn, 1<<20)
	readErr := make(chan error, 1)
	go func() {
		for {
			frame, err := frames.Next()
			if err != nil {
				readErr <- err
				return
			}
			fmt.Printf("<- %s\n", frame)
		}
	}()

	switch *mode {
	case "hola":
		err = send(conn, map[string]string{"command": protocol.CommandHola, "msg": "probe"})
		if err == nil {
			select {
			case err = <-readErr:
			case <-time.After(2 * time.Second):
			}
		}

	case protocol.RolePlayer:
		err = runPlayer(ctx, conn, *name, *interval)

	case protocol.RoleSpectator:
		err = runSpectator(ctx, conn, *watch, readErr)

	default:
		fmt.Fprintf(os.Stderr, "unknown mode %q\n", *mode)
		os.Exit(2)
	}

	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "probe failed: %v\n", err)
		os.Exit(1)
	}
}

func runPlayer(ctx context.Context, conn net.Conn, name string, interval time.Duration) error {
	if err := send(conn, map[string]string{
		"command":     protocol.CommandDeclareRole,
		"tipoCliente": protocol.RolePlayer,
		"playerName":  name,
	}); err != nil {
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Paddle sweeps left and right, one ball circles the field
	for tick := 0; ; tick++ {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		t := float64(tick) / 10
		state := map[string]any{
			"command": protocol.CommandSendGameState,
			"player": protocol.PlayerSnapshot{
				PositionX: 400 + 300*math.Sin(t),
				PositionY: 560,
				SizeX:     120,
				SizeY:     16,
				Life:      3,
				Score:     float64(tick),
			},
			"balls": []protocol.Ball{{
				Active:    true,
				PositionX: 400 + 200*math.Cos(t),
				PositionY: 300 + 200*math.Sin(t),
			}},
		}
		if err := send(conn, state); err != nil {
			return err
		}
	}
}

func runSpectator(ctx context.Context, conn net.Conn, watch string, readErr <-chan error) error {
	if err := send(conn, map[string]string{
		"command":     protocol.CommandDeclareRole,
		"tipoCliente": protocol.RoleSpectator,
	}); err != nil {
		return err
	}

	if watch != "" {
		if err := send(conn, map[string]string{
			"command":   protocol.CommandWatchPlayer,
			"jugadorId": watch,
		}); err != nil {
			return err
		}
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-readErr:
		return err
	}
}

func send(conn net.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	fmt.Printf("-> %s\n", data)
	if _, err := conn.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}
