// Command affiche serves or prints the best-rated popular films.
//
// Run locally with "go run ./cmd/affiche serve" or "go run ./cmd/affiche crawl --top-count 5".
// Settings come from an optional --config file and AFFICHE_* environment variables,
// for example AFFICHE_CACHE_BACKEND=redis and AFFICHE_CACHE_REDIS_ADDR=localhost:6379.
package main

import "github.com/JakeFAU/affiche/cmd"

func main() {
	cmd.Execute()
}
