package main

import "github.com/sportscouncil/tournament-gateway/internal/cli/cmd"

func main() {
	cmd.Execute()
}
