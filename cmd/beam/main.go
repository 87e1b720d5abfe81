// Command beam stages files for transfer and drives password-authenticated,
// end-to-end encrypted sends and receives over a direct TCP connection.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/nimbusio/beam/internal/config"
	"github.com/nimbusio/beam/internal/observability"
	"github.com/nimbusio/beam/internal/session"
	"github.com/nimbusio/beam/internal/staging"
	"github.com/nimbusio/beam/internal/transfer"
	"github.com/nimbusio/beam/internal/validation"
	"github.com/nimbusio/beam/internal/xerrors"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	shutdown, err := observability.InitTracing(context.Background(), "beam")
	if err != nil {
		fmt.Fprintf(os.Stderr, "tracing init: %v\n", err)
	} else {
		defer shutdown(context.Background())
	}

	command := os.Args[1]
	args := os.Args[2:]
	cfg := config.DefaultConfig()

	switch command {
	case "add":
		err = addCmd(cfg, args)
	case "drop":
		err = dropCmd(cfg, args)
	case "list":
		err = listCmd(cfg, args)
	case "clear":
		err = clearCmd(cfg, args)
	case "send":
		err = sendCmd(cfg, args)
	case "receive":
		err = receiveCmd(cfg, args)
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		if err == xerrors.ErrDeclined {
			fmt.Println("Transfer was declined by the receiver.")
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("beam - password-authenticated, encrypted file transfer")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  beam add <path>...          stage files for the next transfer")
	fmt.Println("  beam drop <path>...         unstage files")
	fmt.Println("  beam list                   list staged files")
	fmt.Println("  beam clear                  unstage everything")
	fmt.Println("  beam send <ip> <port> [password]")
	fmt.Println("  beam receive [password]")
	fmt.Println("  beam help")
}

func openRegistry(cfg *config.Config) (*staging.Registry, error) {
	return staging.Open(cfg.StagingDBPath)
}

func addCmd(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	fs.Parse(args)
	paths := fs.Args()
	if len(paths) == 0 {
		return xerrors.NewPrecondition("usage: beam add <path>...")
	}
	for i, p := range paths {
		if err := validation.ValidateFilePath(p, true); err != nil {
			return err
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		paths[i] = abs
	}
	reg, err := openRegistry(cfg)
	if err != nil {
		return err
	}
	defer reg.Close()
	if err := reg.Stage(paths); err != nil {
		return err
	}
	fmt.Printf("staged %d file(s)\n", len(paths))
	return nil
}

func dropCmd(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("drop", flag.ExitOnError)
	fs.Parse(args)
	paths := fs.Args()
	if len(paths) == 0 {
		return xerrors.NewPrecondition("usage: beam drop <path>...")
	}
	for i, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		paths[i] = abs
	}
	reg, err := openRegistry(cfg)
	if err != nil {
		return err
	}
	defer reg.Close()
	if err := reg.Unstage(paths); err != nil {
		return err
	}
	fmt.Printf("unstaged %d file(s)\n", len(paths))
	return nil
}

func listCmd(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	fs.Parse(args)
	reg, err := openRegistry(cfg)
	if err != nil {
		return err
	}
	defer reg.Close()
	paths, err := reg.List()
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		fmt.Println("no files staged")
		return nil
	}
	for _, p := range paths {
		fmt.Println(p)
	}
	return nil
}

func clearCmd(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("clear", flag.ExitOnError)
	fs.Parse(args)
	reg, err := openRegistry(cfg)
	if err != nil {
		return err
	}
	defer reg.Close()
	if err := reg.Clear(); err != nil {
		return err
	}
	fmt.Println("staging cleared")
	return nil
}

func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	pw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(pw), nil
}

func sendCmd(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	fs.Parse(args)
	rest := fs.Args()
	if len(rest) < 2 {
		return xerrors.NewPrecondition("usage: beam send <ip> <port> [password]")
	}
	ip := rest[0]
	port, err := strconv.Atoi(rest[1])
	if err != nil {
		return fmt.Errorf("%w: %v", validation.ErrInvalidPort, err)
	}
	if err := validation.ValidateHostPort(ip, port); err != nil {
		return err
	}

	password := ""
	if len(rest) >= 3 {
		password = rest[2]
	} else {
		password, err = readPassword("Password: ")
		if err != nil {
			return err
		}
	}

	reg, err := openRegistry(cfg)
	if err != nil {
		return err
	}
	defer reg.Close()
	files, err := reg.List()
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Println("No files staged. Nothing to send.")
		return nil
	}

	log := observability.NewLogger("beam-sender", "dev", nil)
	addr := fmt.Sprintf("%s:%d", ip, port)
	// Staged paths are absolute; root the request's relative paths at the
	// filesystem root so the receiver reconstructs the full staged layout.
	snd := session.NewSender(addr, password, string(os.PathSeparator), files, log)
	return snd.Run()
}

func receiveCmd(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("receive", flag.ExitOnError)
	var outDir string
	var metricsAddr string
	fs.StringVar(&outDir, "out", ".", "directory to write received files into")
	fs.StringVar(&metricsAddr, "metrics", cfg.MetricsAddress, "loopback address to serve Prometheus metrics on, empty to disable")
	fs.Parse(args)
	rest := fs.Args()

	var password string
	var err error
	if len(rest) >= 1 {
		password = rest[0]
	} else {
		password, err = readPassword("Password: ")
		if err != nil {
			return err
		}
	}

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.DefaultMetrics().Handler())
		go http.ListenAndServe(metricsAddr, mux)
	}

	log := observability.NewLogger("beam-receiver", "dev", nil)
	recv := session.NewReceiver(cfg.ListenAddress, password, outDir, log)
	recv.AcceptPolicy = promptAccept
	return recv.Run()
}

// promptAccept asks the operator whether to accept an incoming transfer
// request, defaulting to decline on anything but an explicit "y".
func promptAccept(req *transfer.Request) bool {
	fmt.Printf("Incoming transfer: %d file(s), %d bytes. Accept? [y/N] ", req.NumFiles, req.TransferSize)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
