// Regenerates the embedded configuration schema. Run via go:generate
// from the config package.
package main

import (
	"log"
	"os"
	"path/filepath"

	"github.com/quarterdeck/core/config"
)

func main() {
	schemaBytes, err := config.GenerateSchema()
	if err != nil {
		log.Fatalf("Error generating schema: %v", err)
	}

	// Write next to the validator that embeds it.
	outputPath := filepath.Join("..", "schema", "quarterdeck.embedded.schema.json")
	if err := os.WriteFile(outputPath, schemaBytes, 0644); err != nil {
		log.Fatalf("Error writing schema file: %v", err)
	}

	log.Printf("Successfully generated schema at %s", outputPath)
}
