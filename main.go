package main

import (
	"log"
	"os"
	"srmsync/cmd"
	"srmsync/config"
)

func main() {
	cnf, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration " + err.Error())
	}
	if err := cmd.Execute(cnf); err != nil {
		os.Exit(1)
	}
}
