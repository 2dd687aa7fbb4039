package main

import (
	"context"
	"pmcautomation/cmd/pmc/commands"
	"pmcautomation/pkg/serviceutil"
)

func main() {
	ctx, cancel := serviceutil.SignalContext(context.Background())
	defer cancel()
	commands.ExecuteContext(ctx)
}
