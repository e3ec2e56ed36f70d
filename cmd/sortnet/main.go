package main

import (
	"log"
	"os"
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("sortnet: ")
	if err := App.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
