package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"realtime_chat_client/internal/chat/domain"
	"realtime_chat_client/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// GraphQLClient POST {query, variables} with bearer token
type GraphQLClient struct {
	url     string
	tokens  TokenStore
	timeout time.Duration
}

// NewGraphQLClient create GraphQLClient
func NewGraphQLClient(url string, tokens TokenStore, timeout time.Duration) *GraphQLClient {
	return &GraphQLClient{url: url, tokens: tokens, timeout: timeout}
}

type graphQLResult struct {
	code int
	body []byte
	errs []error
}

// Do run one operation, decode data into out
func (c *GraphQLClient) Do(ctx context.Context, req domain.GraphQLRequest, out interface{}) error {
	token, err := c.tokens.GetToken(ctx)
	if err != nil {
		return err
	}

	agent := fiber.Post(c.url).
		Set(fiber.HeaderAuthorization, "Bearer "+token).
		JSON(req)
	if c.timeout > 0 {
		agent.Timeout(c.timeout)
	}

	// fiber agent 沒有 ctx, 在 goroutine 跑
	done := make(chan graphQLResult, 1)
	go func() {
		code, body, errs := agent.Bytes()
		done <- graphQLResult{code: code, body: body, errs: errs}
	}()

	var res graphQLResult
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res = <-done:
	}

	if len(res.errs) > 0 {
		return fmt.Errorf("graphql %s: %w", req.OperationName, errors.Join(res.errs...))
	}

	var resp domain.GraphQLResponse
	if err := json.Unmarshal(res.body, &resp); err != nil {
		if res.code != fiber.StatusOK {
			return &domain.GraphQLError{Status: res.code}
		}
		return fmt.Errorf("graphql %s decode: %w", req.OperationName, err)
	}

	if len(resp.Errors) > 0 || res.code != fiber.StatusOK {
		gqlErr := &domain.GraphQLError{Status: res.code}
		for _, e := range resp.Errors {
			gqlErr.Messages = append(gqlErr.Messages, e.Message)
		}
		logger.Log.Debug("graphql error", zap.String("op", req.OperationName), zap.Error(gqlErr))
		return gqlErr
	}

	if out == nil || len(resp.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return fmt.Errorf("graphql %s data: %w", req.OperationName, err)
	}
	return nil
}
