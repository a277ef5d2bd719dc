package oracle

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"advocacy-engine/pkg/config"
	"advocacy-engine/pkg/errutil"
)

const verdictPrompt = `Analyze this social media screenshot. The submitter wrote alongside it: %q

Respond with ONLY a JSON object, no prose, with these exact fields:
{
  "platform": "youtube|tiktok|instagram|facebook|twitter|reddit|quora|unknown",
  "content_type": "video|reel|post|group_post|tweet|thread|answer|story|unknown",
  "engagement_metrics": {"likes": 0, "comments": 0, "shares": 0, "retweets": 0, "saves": 0, "views": 0},
  "is_authentic": true,
  "quality_score": 5
}

Read the engagement numbers exactly as shown in the screenshot and use 0 for
anything not visible. Set is_authentic to false if the screenshot looks edited,
mocked up, or is not a social media post at all. Score quality_score from 1
(spam or unrelated) to 10 (substantial original content).`

// VisionAnalyzer asks an OpenAI-compatible vision model to read a
// screenshot. A zero API key leaves the client nil and every Analyze call
// reports the oracle unavailable, which intake treats as "accept but flag".
type VisionAnalyzer struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

func NewAnalyzer(cfg *config.Config) Analyzer {
	a := &VisionAnalyzer{
		model:   cfg.Oracle.Model,
		timeout: cfg.Oracle.Timeout,
	}

	if cfg.Oracle.ApiKey == "" {
		zap.L().Warn("vision oracle disabled, screenshot submissions will be flagged unverified")
		return a
	}

	clientCfg := openai.DefaultConfig(cfg.Oracle.ApiKey)
	if cfg.Oracle.BaseURL != "" {
		clientCfg.BaseURL = cfg.Oracle.BaseURL
	}
	a.client = openai.NewClientWithConfig(clientCfg)
	return a
}

func (a *VisionAnalyzer) Analyze(ctx context.Context, image []byte, contextText string) (*Verdict, error) {
	if a.client == nil {
		return nil, errutil.OracleUnavailable("vision oracle is not configured", nil)
	}
	if len(image) == 0 {
		return nil, errutil.OracleUnavailable("no image bytes to analyze", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	dataURL := fmt.Sprintf("data:%s;base64,%s",
		http.DetectContentType(image),
		base64.StdEncoding.EncodeToString(image),
	)

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     a.model,
		MaxTokens: 500,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: fmt.Sprintf(verdictPrompt, contextText),
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    dataURL,
							Detail: openai.ImageURLDetailAuto,
						},
					},
				},
			},
		},
	})
	if err != nil {
		return nil, errutil.OracleUnavailable("vision oracle call failed", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errutil.OracleUnavailable("vision oracle returned no choices", nil)
	}

	return ParseVerdict(resp.Choices[0].Message.Content)
}
