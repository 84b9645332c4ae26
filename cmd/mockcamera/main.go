// Command mockcamera stands in for the ESP32-CAM during development. It
// serves a random image from a local directory on the same /capture
// endpoint the real camera exposes.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func main() {
	port := flag.Int("port", 81, "listen port")
	imageDir := flag.String("images", "testdata/frames", "directory of jpeg frames to serve")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	frames, err := loadFrames(*imageDir)
	if err != nil {
		log.Fatal().Err(err).Str("dir", *imageDir).Msg("failed to load frames")
	}
	log.Info().Int("frames", len(frames)).Str("dir", *imageDir).Msg("mock camera ready")

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "mock esp32-cam, %d frames loaded\n", len(frames))
	})
	r.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "frames": len(frames)})
	})
	r.GET("/capture", func(c *gin.Context) {
		path := frames[rand.Intn(len(frames))]
		log.Debug().Str("frame", path).Msg("serving capture")
		c.File(path)
	})

	if err := r.Run(fmt.Sprintf(":%d", *port)); err != nil {
		log.Fatal().Err(err).Msg("mock camera exited")
	}
}

func loadFrames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var frames []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := strings.ToLower(entry.Name())
		if strings.HasSuffix(name, ".jpg") || strings.HasSuffix(name, ".jpeg") || strings.HasSuffix(name, ".png") {
			frames = append(frames, filepath.Join(dir, entry.Name()))
		}
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("no images found in %s", dir)
	}
	return frames, nil
}
