package catalog

import (
	"bytes"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Image sizes used by the browsing UI.
const (
	PosterSize   = "w500"
	BackdropSize = "w1280"
)

// Images builds absolute image URLs from TMDB file paths.
type Images struct {
	base string
}

// NewImages creates an Images for the given base, e.g. https://image.tmdb.org/t/p.
func NewImages(base string) Images {
	return Images{base: strings.TrimSuffix(base, "/")}
}

// PosterURL returns the poster URL for a file path, or "" if path is empty.
func (im Images) PosterURL(path string) string {
	return im.url(PosterSize, path)
}

// BackdropURL returns the backdrop URL for a file path, or "" if path is empty.
func (im Images) BackdropURL(path string) string {
	return im.url(BackdropSize, path)
}

func (im Images) url(size, path string) string {
	if path == "" || im.base == "" {
		return ""
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return im.base + "/" + size + path
}

// decorate adds poster_url and backdrop_url to one JSON object when the
// matching *_path field is set.
func (im Images) decorate(raw []byte, item gjson.Result) []byte {
	if u := im.PosterURL(item.Get("poster_path").String()); u != "" {
		if out, err := sjson.SetBytes(raw, "poster_url", u); err == nil {
			raw = out
		}
	}
	if u := im.BackdropURL(item.Get("backdrop_path").String()); u != "" {
		if out, err := sjson.SetBytes(raw, "backdrop_url", u); err == nil {
			raw = out
		}
	}
	return raw
}

// decorateArray returns a JSON array of the decorated objects in arr that pass
// keep (nil keeps everything). A missing array yields [].
func (im Images) decorateArray(arr gjson.Result, keep func(gjson.Result) bool) []byte {
	var buf bytes.Buffer
	buf.WriteByte('[')
	n := 0
	arr.ForEach(func(_, item gjson.Result) bool {
		if keep != nil && !keep(item) {
			return true
		}
		if n > 0 {
			buf.WriteByte(',')
		}
		buf.Write(im.decorate([]byte(item.Raw), item))
		n++
		return true
	})
	buf.WriteByte(']')
	return buf.Bytes()
}

// rawArray returns arr verbatim, or [] when it is missing or not an array.
func rawArray(arr gjson.Result) []byte {
	if !arr.IsArray() {
		return []byte("[]")
	}
	return []byte(arr.Raw)
}
