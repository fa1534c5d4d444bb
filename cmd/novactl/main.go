package main

import (
	"fmt"
	"os"

	"novachat/pkg/chatclient"
)

func main() {
	if err := chatclient.RunCLI(os.Args[0], os.Args[1:], os.Stderr); err != nil {
		if usage, ok := err.(chatclient.UsageError); ok {
			fmt.Fprintln(os.Stderr, usage.Error())
			for _, line := range usage.UsageLines() {
				fmt.Fprintln(os.Stderr, line)
			}
			os.Exit(2)
		}
		os.Exit(1)
	}
}
