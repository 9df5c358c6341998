package container

import (
	"fmt"
	"strings"
)

// Image is a docker image reference split into repository and tag.
type Image struct {
	Repository string
	Version    string
	// UIDGID is the user the image runs as, e.g. "1000:1000". Optional.
	UIDGID string
}

// NewImage returns an Image for repository:version.
func NewImage(repository, version, uidGID string) Image {
	return Image{Repository: repository, Version: version, UIDGID: uidGID}
}

// ParseImage splits a reference such as ethereum/client-go:v1.13.15.
// A missing tag defaults to latest.
func ParseImage(ref string) (Image, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Image{}, fmt.Errorf("empty image reference")
	}
	// a colon after the last slash separates the tag; earlier ones belong to a registry port.
	slash := strings.LastIndex(ref, "/")
	if colon := strings.LastIndex(ref, ":"); colon > slash {
		if colon == len(ref)-1 {
			return Image{}, fmt.Errorf("image reference %q has an empty tag", ref)
		}
		return Image{Repository: ref[:colon], Version: ref[colon+1:]}, nil
	}
	return Image{Repository: ref, Version: "latest"}, nil
}

// Ref returns repository:version.
func (i Image) Ref() string {
	if i.Version == "" {
		return i.Repository + ":latest"
	}
	return i.Repository + ":" + i.Version
}

// String implements fmt.Stringer.
func (i Image) String() string { return i.Ref() }
