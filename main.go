// statebar aggregates desktop status signals for bars and overlays.
//
// It polls idle inhibitors, media activity, network state, pending updates
// and the notification inbox, merges them into one ranked state and serves
// that state to status bars, scripts and a terminal inspector.
//
// Usage:
//
//	statebar daemon               run the aggregation daemon
//	statebar state [-f format]    print the aggregated state
//	statebar waybar               stream waybar custom-module lines
//	statebar watch                live terminal inspector
//	statebar workspaces [monitor] list compositor workspaces
//	statebar ctl <command...>     send a raw IPC command
//	statebar version              print version information
package main

import (
	"context"
	"os"

	"gitlab.com/tinyland/lab/statebar/cmd"
)

func main() {
	os.Exit(cmd.Execute(context.Background()))
}
