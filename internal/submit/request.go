// Package submit packages a whistle for identification and hands it to the
// submission collaborator off the owning loop.
package submit

import (
	"errors"
	"strings"
)

var (
	ErrSubmissionFailed = errors.New("submission failed")
	ErrNoArtifact       = errors.New("submission requires a recorded whistle")
)

// Request is immutable once built
type Request struct {
	genre        string
	comments     string
	artifactPath string
}

// NewRequest builds the request handed to a Submitter
func NewRequest(genre, comments, artifactPath string) (Request, error) {
	if strings.TrimSpace(artifactPath) == "" {
		return Request{}, ErrNoArtifact
	}
	return Request{
		genre:        genre,
		comments:     comments,
		artifactPath: artifactPath,
	}, nil
}

func (r Request) Genre() string        { return r.genre }
func (r Request) Comments() string     { return r.comments }
func (r Request) ArtifactPath() string { return r.artifactPath }
