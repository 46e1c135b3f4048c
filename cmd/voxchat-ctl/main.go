package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"

	"voxchat/internal/ipc"
)

func main() {
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	socket := cli.StringP("socket", "s", "", "Control socket of a running voxchat")
	cli.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: voxchat-ctl [flags] [status|quit]\n")
		cli.PrintDefaults()
	}
	cli.Parse()

	godotenv.Load(*envFile)
	if *socket == "" {
		*socket = os.Getenv("CONTROL_SOCKET")
	}
	if *socket == "" {
		*socket = filepath.Join(os.TempDir(), "voxchat.sock")
	}

	cmd := ipc.CmdStatus
	if cli.NArg() > 0 {
		cmd = cli.Arg(0)
	}

	reply, err := ipc.SendCommand(*socket, cmd)
	if err != nil {
		fmt.Println("voxchat not running:", err)
		os.Exit(1)
	}
	if !reply.OK {
		fmt.Println("voxchat:", reply.Error)
		os.Exit(1)
	}

	if reply.Status != "" {
		fmt.Println(reply.Status)
	} else {
		fmt.Println("ok")
	}
}
