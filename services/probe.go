package services

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"trusight/logger"
)

const probeTimeout = 10 * time.Second

type ModelLister interface {
	ListModels(ctx context.Context) (openai.ModelsList, error)
}

// ProbeStatus is the connectivity report served on /api/status.
type ProbeStatus struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Probe checks that the completion provider is reachable.
type Probe struct {
	client   ModelLister
	provider string
}

func NewProbe(client ModelLister, provider string) *Probe {
	return &Probe{client: client, provider: provider}
}

func (p *Probe) Check(ctx context.Context) ProbeStatus {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	models, err := p.client.ListModels(ctx)
	if err != nil {
		logger.Log.Warnf("[PROBE] %s unreachable: %v", p.provider, err)
		return ProbeStatus{Status: "disconnected", Message: fmt.Sprintf("Cannot reach %s: %v", p.provider, err)}
	}
	return ProbeStatus{
		Status:  "connected",
		Message: fmt.Sprintf("Connected to %s (%d models available)", p.provider, len(models.Models)),
	}
}
