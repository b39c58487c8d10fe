package app

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/pyscope/internal/watcher"
)

var (
	watchDaemon      bool
	watchDaemonChild bool
	watchStop        bool
	watchStatus      bool
	watchPIDFile     string
	watchLogFile     string

	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Watch site-packages and invalidate stale inventories",
		Long: `Watch every discovered environment's site-packages directory and mark
its cached inventory stale when files change, so installs made outside
this tool are picked up on the next scan.

Runs in the foreground by default; --daemon detaches into the background.`,
		Example: `  # Watch in the foreground
  pyscope watch

  # Run in the background
  pyscope watch --daemon

  # Stop the background watcher
  pyscope watch --stop`,
		RunE: runWatch,
	}
)

func init() {
	watchCmd.Flags().BoolVar(&watchDaemon, "daemon", false, "run in the background")
	watchCmd.Flags().BoolVar(&watchDaemonChild, "daemon-child", false, "")
	watchCmd.Flags().BoolVar(&watchStop, "stop", false, "stop the background watcher")
	watchCmd.Flags().BoolVar(&watchStatus, "status", false, "report whether the background watcher is running")
	watchCmd.Flags().StringVar(&watchPIDFile, "pid-file", "", "PID file path (default: data dir)")
	watchCmd.Flags().StringVar(&watchLogFile, "log-file", "", "log file path (default: data dir)")
	watchCmd.Flags().MarkHidden("daemon-child") //nolint:errcheck
}

func runWatch(cmd *cobra.Command, args []string) error {
	pidFile := watchPIDFile
	if pidFile == "" {
		var err error
		pidFile, err = getDefaultPIDFile()
		if err != nil {
			return err
		}
	}
	logFile := watchLogFile
	if logFile == "" {
		var err error
		logFile, err = getDefaultLogFile()
		if err != nil {
			return err
		}
	}

	switch {
	case watchStop:
		if err := watcher.StopDaemon(pidFile); err != nil {
			return err
		}
		fmt.Println("✓ Watcher stopped")
		return nil

	case watchStatus:
		running, err := watcher.IsDaemonRunning(pidFile)
		if err != nil {
			return err
		}
		if running {
			fmt.Println("Watcher is running")
		} else {
			fmt.Println("Watcher is not running")
		}
		return nil

	case watchDaemon:
		if err := watcher.StartDaemon(pidFile, logFile); err != nil {
			return err
		}
		fmt.Printf("✓ Watcher started in the background (log: %s)\n", logFile)
		return nil
	}

	app, err := newAppContext(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	w, err := watcher.New(app.inv, app.log)
	if err != nil {
		return err
	}

	watched := 0
	for _, env := range app.registry.List() {
		if err := w.Watch(env); err != nil {
			fmt.Printf("⚠ %s: %v\n", env.ID, err)
			continue
		}
		watched++
	}
	if watched == 0 {
		w.Stop() //nolint:errcheck
		return fmt.Errorf("no environments to watch")
	}

	if watchDaemonChild {
		return w.RunDaemon(pidFile)
	}

	fmt.Printf("Watching %d environments (Ctrl-C to stop)\n", watched)
	w.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	<-sigCh

	return w.Stop()
}
