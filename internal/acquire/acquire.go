// Package acquire downloads the fixed set of sample face images.
package acquire

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/andresmejia3/skintone/internal/event"
	"github.com/andresmejia3/skintone/internal/utils"
)

var log = event.Log

// Source is one image to fetch and the file name to store it under.
type Source struct {
	URL  string
	Name string
}

// DefaultSources are the two public test images the pipeline was built around.
var DefaultSources = []Source{
	{URL: "https://upload.wikimedia.org/wikipedia/en/7/7d/Lenna_%28test_image%29.png", Name: "lena.png"},
	{URL: "https://github.com/scikit-image/scikit-image/raw/main/skimage/data/astronaut.png", Name: "astronaut.png"},
}

// DefaultDir is where fetched images land.
const DefaultDir = "raw"

// Config drives a fetch run. A nil Client means http.DefaultClient.
type Config struct {
	Dir     string
	Sources []Source
	Client  *http.Client
}

// Summary reports what a fetch run did.
type Summary struct {
	Downloaded int
	Skipped    int
	Failed     int
}

// Run fetches every source missing from cfg.Dir. Existing files are never
// requested. A failed source is logged and the rest still run; only a failure
// to create the directory or cancellation ends the batch.
func Run(ctx context.Context, cfg Config) (Summary, error) {
	var sum Summary

	if err := utils.EnsureDir(cfg.Dir); err != nil {
		return sum, fmt.Errorf("failed to create %s: %w", cfg.Dir, err)
	}

	client := cfg.Client
	if client == nil {
		client = http.DefaultClient
	}

	for _, src := range cfg.Sources {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		dest := filepath.Join(cfg.Dir, src.Name)
		if _, err := os.Stat(dest); err == nil {
			log.Debugf("acquire: %s already present", src.Name)
			sum.Skipped++
			continue
		}

		if err := download(ctx, client, src.URL, dest); err != nil {
			log.Errorf("acquire: failed to download %s: %s", src.URL, err)
			sum.Failed++
			continue
		}
		log.Infof("acquire: downloaded %s", src.Name)
		sum.Downloaded++
	}
	return sum, nil
}

func download(ctx context.Context, client *http.Client, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status: %d", resp.StatusCode)
	}

	tmp := dest + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("download failed: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}

	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to move file: %w", err)
	}
	return nil
}
