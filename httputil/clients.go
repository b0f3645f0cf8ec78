package httputil

import (
	"net/http"
	"time"
)

type Clients struct {
	Publish *http.Client // upload-post service
	Portal  *http.Client // agent portal status probes
}

func NewClients(publishTimeout time.Duration) *Clients {
	if publishTimeout <= 0 {
		publishTimeout = 30 * time.Second
	}

	portal := &http.Client{
		Timeout: 15 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return &Clients{
		Publish: &http.Client{Timeout: publishTimeout},
		Portal:  portal,
	}
}
