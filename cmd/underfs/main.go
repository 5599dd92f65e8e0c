// Command underfs is an operations console for an under-filesystem backend:
// it loads the adapter configuration, connects to the configured backend,
// and runs one path operation (or an end-to-end probe) against it.
//
// Usage:
//
//	underfs [flags] <command> [args]
//
// Commands:
//
//	exists <path>            report whether a path exists
//	is-file <path>           report whether a path is a regular file
//	ls <path>                list the children of a directory
//	stat <path>              print size, block size, and modification time
//	mkdirs <path>            create a directory and its missing ancestors
//	rm [-r] <path>           delete a path
//	mv <src> <dst>           rename a path
//	put <local> <path>       upload a local file
//	get <path>               print a file's contents to stdout
//	chmod <mode> <path>      set permissions, e.g. chmod 0644 /data/f
//	locations <path> <off>   print the hosts holding a block
//	space                    print cluster capacity figures
//	probe                    run an end-to-end create/list/rename/delete check
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/underfs/underfs/internal/logger"
	"github.com/underfs/underfs/pkg/config"
	"github.com/underfs/underfs/pkg/metrics"
	"github.com/underfs/underfs/pkg/underfs"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: "+config.GetDefaultConfigPath()+")")
	logLevel := flag.String("log-level", "", "Override log level (DEBUG, INFO, WARN, ERROR)")
	role := flag.String("role", "", "Perform a role login before the command (master or worker)")
	timeout := flag.Duration("timeout", 2*time.Minute, "Overall command timeout")
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	configureLogger(&cfg.Logging)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	// Ctrl+C cancels the in-flight operation.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Warn("interrupt received, cancelling")
		cancel()
	}()

	if cfg.Metrics.Enabled {
		startMetricsServer(cfg.Metrics.Listen)
	}

	ufs, err := config.CreateUnderFileSystem(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to create under filesystem: %v", err)
	}
	defer ufs.Close()

	logger.Info("connected to %s under filesystem at %q", cfg.UnderFS.Type, cfg.UnderFS.Prefix)

	hostname, _ := os.Hostname()
	switch *role {
	case "":
	case "master":
		if err := ufs.ConnectFromMaster(ctx, hostname); err != nil {
			log.Fatalf("Master login failed: %v", err)
		}
	case "worker":
		if err := ufs.ConnectFromWorker(ctx, hostname); err != nil {
			log.Fatalf("Worker login failed: %v", err)
		}
	default:
		log.Fatalf("Unknown role %q (want master or worker)", *role)
	}

	if err := runCommand(ctx, ufs, flag.Args()); err != nil {
		log.Fatalf("Command failed: %v", err)
	}
}

// configureLogger applies the logging section to the process logger.
func configureLogger(cfg *config.LoggingConfig) {
	logger.SetLevel(cfg.Level)
	logger.SetFormat(cfg.Format)
	if err := logger.SetOutput(cfg.Output); err != nil {
		log.Fatalf("Failed to configure log output: %v", err)
	}
}

// startMetricsServer serves the Prometheus exposition endpoint in the
// background.
func startMetricsServer(listen string) {
	metrics.InitRegistry()
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	go func() {
		logger.Info("metrics listening on %s", listen)
		if err := http.ListenAndServe(listen, mux); err != nil {
			logger.Error("metrics server error: %v", err)
		}
	}()
}

func runCommand(ctx context.Context, ufs underfs.UnderFileSystem, args []string) error {
	command, args := args[0], args[1:]

	switch command {
	case "exists":
		path, err := wantArgs(args, 1)
		if err != nil {
			return err
		}
		found, err := ufs.Exists(ctx, path[0])
		if err != nil {
			return err
		}
		fmt.Println(found)
		return nil

	case "is-file":
		path, err := wantArgs(args, 1)
		if err != nil {
			return err
		}
		isFile, err := ufs.IsFile(ctx, path[0])
		if err != nil {
			return err
		}
		fmt.Println(isFile)
		return nil

	case "ls":
		path, err := wantArgs(args, 1)
		if err != nil {
			return err
		}
		names, err := ufs.List(ctx, path[0])
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil

	case "stat":
		path, err := wantArgs(args, 1)
		if err != nil {
			return err
		}
		return runStat(ctx, ufs, path[0])

	case "mkdirs":
		path, err := wantArgs(args, 1)
		if err != nil {
			return err
		}
		created, err := ufs.Mkdirs(ctx, path[0], true)
		if err != nil {
			return err
		}
		if !created {
			logger.Warn("%s already exists", path[0])
		}
		return nil

	case "rm":
		recursive := false
		if len(args) > 0 && args[0] == "-r" {
			recursive = true
			args = args[1:]
		}
		path, err := wantArgs(args, 1)
		if err != nil {
			return err
		}
		deleted, err := ufs.Delete(ctx, path[0], recursive)
		if err != nil {
			return err
		}
		if !deleted {
			return fmt.Errorf("%s was not deleted", path[0])
		}
		return nil

	case "mv":
		paths, err := wantArgs(args, 2)
		if err != nil {
			return err
		}
		renamed, err := ufs.Rename(ctx, paths[0], paths[1])
		if err != nil {
			return err
		}
		if !renamed {
			return fmt.Errorf("rename of %s to %s was refused", paths[0], paths[1])
		}
		return nil

	case "put":
		paths, err := wantArgs(args, 2)
		if err != nil {
			return err
		}
		return runPut(ctx, ufs, paths[0], paths[1])

	case "get":
		path, err := wantArgs(args, 1)
		if err != nil {
			return err
		}
		r, err := ufs.Open(ctx, path[0])
		if err != nil {
			return err
		}
		defer r.Close()
		_, err = io.Copy(os.Stdout, r)
		return err

	case "chmod":
		params, err := wantArgs(args, 2)
		if err != nil {
			return err
		}
		return ufs.SetPermission(ctx, params[1], params[0])

	case "locations":
		params, err := wantArgs(args, 2)
		if err != nil {
			return err
		}
		offset, err := strconv.ParseInt(params[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid offset %q: %w", params[1], err)
		}
		hosts, err := ufs.FileLocations(ctx, params[0], offset)
		if err != nil {
			return err
		}
		for _, host := range hosts {
			fmt.Println(host)
		}
		return nil

	case "space":
		return runSpace(ctx, ufs)

	case "probe":
		return runProbe(ctx, ufs)

	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func wantArgs(args []string, n int) ([]string, error) {
	if len(args) != n {
		return nil, fmt.Errorf("expected %d argument(s), got %d", n, len(args))
	}
	return args, nil
}

func runStat(ctx context.Context, ufs underfs.UnderFileSystem, path string) error {
	size, err := ufs.FileSize(ctx, path)
	if err != nil {
		return err
	}
	blockSize, err := ufs.BlockSizeBytes(ctx, path)
	if err != nil {
		return err
	}
	modTime, err := ufs.ModificationTimeMs(ctx, path)
	if err != nil {
		return err
	}

	fmt.Printf("size:       %d\n", size)
	fmt.Printf("block size: %d\n", blockSize)
	fmt.Printf("modified:   %s\n", time.UnixMilli(modTime).Format(time.RFC3339))
	return nil
}

func runPut(ctx context.Context, ufs underfs.UnderFileSystem, local, remote string) error {
	src, err := os.Open(local)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := ufs.Create(ctx, remote)
	if err != nil {
		return err
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("failed to upload %s: %w", local, err)
	}
	return dst.Close()
}

func runSpace(ctx context.Context, ufs underfs.UnderFileSystem) error {
	for _, kind := range []underfs.SpaceType{underfs.SpaceTotal, underfs.SpaceUsed, underfs.SpaceFree} {
		v, err := ufs.Space(ctx, "/", kind)
		if err != nil {
			return err
		}
		if v == underfs.SpaceUnknown {
			fmt.Printf("%-5s unknown\n", kind)
		} else {
			fmt.Printf("%-5s %d\n", kind, v)
		}
	}
	return nil
}

// runProbe exercises the full operation surface against a scratch
// directory and cleans up after itself.
func runProbe(ctx context.Context, ufs underfs.UnderFileSystem) error {
	scratch := fmt.Sprintf("/.underfs-probe-%d", time.Now().UnixNano())
	payload := []byte("underfs probe payload\n")

	logger.Info("probe: using scratch directory %s", scratch)

	created, err := ufs.Mkdirs(ctx, scratch+"/dir", true)
	if err != nil {
		return fmt.Errorf("mkdirs: %w", err)
	}
	if !created {
		return fmt.Errorf("mkdirs: scratch directory %s already existed", scratch)
	}

	w, err := ufs.Create(ctx, scratch+"/dir/probe.txt")
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		w.Close()
		return fmt.Errorf("write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}

	size, err := ufs.FileSize(ctx, scratch+"/dir/probe.txt")
	if err != nil {
		return fmt.Errorf("file size: %w", err)
	}
	if size != int64(len(payload)) {
		return fmt.Errorf("file size: got %d, want %d", size, len(payload))
	}

	names, err := ufs.List(ctx, scratch+"/dir")
	if err != nil {
		return fmt.Errorf("list: %w", err)
	}
	logger.Info("probe: listed %d entries", len(names))

	renamed, err := ufs.Rename(ctx, scratch+"/dir/probe.txt", scratch+"/dir/probe-renamed.txt")
	if err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	if !renamed {
		return fmt.Errorf("rename was refused")
	}

	r, err := ufs.Open(ctx, scratch+"/dir/probe-renamed.txt")
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	data, err := io.ReadAll(r)
	r.Close()
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}
	if string(data) != string(payload) {
		return fmt.Errorf("read back %d bytes, want %d", len(data), len(payload))
	}

	deleted, err := ufs.Delete(ctx, scratch, true)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	if !deleted {
		return fmt.Errorf("delete of %s was refused", scratch)
	}

	logger.Info("probe: all operations succeeded")
	return nil
}
