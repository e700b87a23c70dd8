// Package videometa resolves an embeddable video locator and its public
// metadata (title, author, thumbnail) from a watch-page URL.
package videometa

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	ErrVideoNotFound      = fmt.Errorf("video not found")
	ErrVideoNotEmbeddable = fmt.Errorf("video is not embeddable")
	ErrInvalidVideoURL    = fmt.Errorf("invalid video url")
)

type VideoData struct {
	Title        string `json:"title"`
	AuthorName   string `json:"author_name"`
	ThumbnailUrl string `json:"thumbnail_url"`
}

const videoIdLength = 11

// ExtractVideoId pulls the 11-character embeddable video id out of the
// supported URL forms: watch?v=, youtu.be/, /embed/ and /shorts/.
func ExtractVideoId(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse video url: %w", err)
	}

	var videoId string
	switch {
	case strings.HasSuffix(u.Host, "youtu.be"):
		videoId = strings.TrimPrefix(u.Path, "/")
	case strings.Contains(u.Path, "/embed/"):
		videoId = u.Path[strings.Index(u.Path, "/embed/")+len("/embed/"):]
	case strings.Contains(u.Path, "/shorts/"):
		videoId = u.Path[strings.Index(u.Path, "/shorts/")+len("/shorts/"):]
	default:
		videoId = u.Query().Get("v")
	}

	if i := strings.IndexAny(videoId, "/?&"); i != -1 {
		videoId = videoId[:i]
	}

	if len(videoId) != videoIdLength {
		return "", ErrInvalidVideoURL
	}

	return videoId, nil
}

// Get resolves metadata for a video id, preferring the oembed endpoint and
// falling back to scraping the watch page for non-embeddable videos.
func Get(videoId string) (*VideoData, error) {
	videoData, err := getVideoWithEmbed(videoId)
	if err != nil {
		if !errors.Is(err, ErrVideoNotEmbeddable) {
			return nil, fmt.Errorf("failed to get video data with embed: %w", err)
		}

		videoData, err = getFromPage(videoId)
		if err != nil {
			return nil, fmt.Errorf("failed to get video data from page: %w", err)
		}
	}

	return videoData, nil
}
