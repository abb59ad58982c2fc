package main

import (
	"github.com/accella/accella/server/cmd/accella-tools/commands"
	_ "github.com/accella/accella/server/cmd/accella-tools/commands/job"
	_ "github.com/accella/accella/server/cmd/accella-tools/commands/migrate"
	_ "github.com/accella/accella/server/cmd/accella-tools/commands/node"
	_ "github.com/accella/accella/server/cmd/accella-tools/commands/workflow"
)

func main() {
	commands.Execute()
}
