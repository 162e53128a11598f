package version

import "fmt"

var (
	Tag    = "v0.0.0-dev"
	Commit = "HEAD"
)

type Version struct {
	Tag    string `json:"tag,omitempty"`
	Commit string `json:"commit,omitempty"`
}

func Get() Version {
	return Version{
		Tag:    Tag,
		Commit: Commit,
	}
}

func (v Version) String() string {
	return fmt.Sprintf("%s (%s)", v.Tag, v.Commit)
}
