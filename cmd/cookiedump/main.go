// Command cookiedump writes the cookies a local browser profile holds for a
// URL, in the form cdpinject sends with Network.setCookies.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/joho/godotenv"

	"cdpinject/internal/cookies"
)

func main() {
	_ = godotenv.Load()

	from := flag.String("from-browser", "chrome", "browser family, optionally with a profile path (chrome:/path/to/Profile)")
	forURL := flag.String("for", "", "URL to dump cookies for (e.g., https://example.com)")
	out := flag.String("out", "./cookies.json", "output JSON path")
	flag.Parse()

	if *forURL == "" {
		log.Fatal("--for URL is required")
	}

	cs, err := cookies.FromBrowser(*from, *forURL)
	if err != nil {
		log.Fatalf("read cookies: %v", err)
	}
	if err := cookies.WriteParams(*out, cs); err != nil {
		log.Fatalf("write %s: %v", *out, err)
	}
	fmt.Printf("Wrote %d cookies for %s to %s\n", len(cs), *forURL, *out)
}
