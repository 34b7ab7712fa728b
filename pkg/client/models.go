package client

import (
	"bytes"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"net/http"
)

// SearchResponse is the body of GET /search/photos.
type SearchResponse struct {
	Total      int     `json:"total"`
	TotalPages int     `json:"total_pages"`
	Results    []Photo `json:"results"`
}

// Photo is one search result.
type Photo struct {
	ID          string    `json:"id"`
	CreatedAt   string    `json:"created_at"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	Color       string    `json:"color,omitempty"`
	BlurHash    string    `json:"blur_hash,omitempty"`
	Likes       int       `json:"likes"`
	Description string    `json:"description,omitempty"`
	URLs        PhotoURLs `json:"urls"`
	User        PhotoUser `json:"user"`
}

// Key returns the photo id. It makes Photo usable with pagination.Aggregator.
func (p Photo) Key() string {
	return p.ID
}

// PhotoURLs are the rendition URLs of a photo.
type PhotoURLs struct {
	Raw     string `json:"raw"`
	Full    string `json:"full"`
	Regular string `json:"regular"`
	Small   string `json:"small"`
	Thumb   string `json:"thumb"`
}

// PhotoUser is the author of a photo.
type PhotoUser struct {
	ID                string        `json:"id"`
	Username          string        `json:"username"`
	Name              string        `json:"name"`
	FirstName         string        `json:"first_name,omitempty"`
	LastName          string        `json:"last_name,omitempty"`
	InstagramUsername string        `json:"instagram_username,omitempty"`
	TwitterUsername   string        `json:"twitter_username,omitempty"`
	PortfolioURL      string        `json:"portfolio_url,omitempty"`
	ProfileImage      *ProfileImage `json:"profile_image,omitempty"`
	Links             *UserLinks    `json:"links,omitempty"`
}

// ProfileImage holds the avatar renditions of a user.
type ProfileImage struct {
	Small  string `json:"small"`
	Medium string `json:"medium"`
	Large  string `json:"large"`
}

// UserLinks holds the public links of a user.
type UserLinks struct {
	HTML string `json:"html"`
}

// Image is a downloaded and validated image.
type Image struct {
	URL         string
	Data        []byte
	ContentType string
	Format      string // "jpeg", "png", "gif"
	Width       int
	Height      int
}

// Cost is the cache weight of the image, its encoded size in bytes.
func (img *Image) Cost() int64 {
	if img == nil {
		return 0
	}
	return int64(len(img.Data))
}

// decodeImage validates data as an image and reads its dimensions.
func decodeImage(url string, data []byte, contentType string) (*Image, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{What: "image", Err: err}
	}
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return &Image{
		URL:         url,
		Data:        data,
		ContentType: contentType,
		Format:      format,
		Width:       cfg.Width,
		Height:      cfg.Height,
	}, nil
}
