package main

import (
	"fmt"
	"os"

	cli "github.com/spf13/pflag"

	"koyomi/internal/config"
	"koyomi/internal/ipc"
)

func main() {
	socket := cli.StringP("socket", "s", config.Default().SocketPath, "Control socket path")
	cli.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: koyomi-ctl [--socket PATH] start|stop|toggle|status|quit")
		cli.PrintDefaults()
	}
	cli.Parse()

	cmd := ipc.CmdToggle
	if cli.NArg() > 0 {
		cmd = cli.Arg(0)
	}

	resp, err := ipc.SendCommand(*socket, cmd)
	if err != nil {
		fmt.Fprintln(os.Stderr, "koyomi not running or command failed:", err)
		os.Exit(1)
	}

	status := "stopped"
	if resp.Running {
		status = "running"
	}
	fmt.Printf("%s (%s)\n", status, resp.State)
}
