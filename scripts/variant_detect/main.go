package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/noah-isme/sma-adp-portal/internal/apiclient"
	"github.com/noah-isme/sma-adp-portal/pkg/config"
)

type variantResult struct {
	Variant  string
	Method   string
	Path     string
	Status   int
	Duration time.Duration
	Records  bool
	Error    error
}

func (r variantResult) ok() bool {
	return r.Error == nil && r.Status >= 200 && r.Status < 300 && r.Records
}

func main() {
	var (
		base      string
		token     string
		studentID string
		timeout   time.Duration
	)

	flag.StringVar(&base, "base", "http://localhost:8080/api/v1", "Enrollment API base URL")
	flag.StringVar(&token, "token", os.Getenv("PORTAL_ACCESS_TOKEN"), "Bearer access token")
	flag.StringVar(&studentID, "student", "", "Student ID to list enrollments for")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "HTTP client timeout")
	flag.Parse()

	if studentID == "" {
		log.Fatal("-student is required")
	}

	client := &http.Client{Timeout: timeout}
	results := checkVariants(context.Background(), client, base, token, studentID)
	printReport(results)

	variant, found := detectVariant(results)
	if !found {
		fmt.Println("No variant answered with an enrollment list")
		os.Exit(1)
	}
	fmt.Printf("Set API_VARIANT=%s\n", variant)
}

func checkVariants(ctx context.Context, client *http.Client, base, token, studentID string) []variantResult {
	tables := []apiclient.Endpoints{
		apiclient.EndpointsFor(config.VariantStudent, config.EndpointOverrides{}),
		apiclient.EndpointsFor(config.VariantAdmin, config.EndpointOverrides{}),
	}

	results := make([]variantResult, 0, len(tables))
	for _, endpoints := range tables {
		results = append(results, check(ctx, client, base, token, endpoints.Variant, endpoints.ListForStudent, studentID))
	}
	return results
}

func check(ctx context.Context, client *http.Client, base, token, variant string, endpoint apiclient.Endpoint, studentID string) variantResult {
	path := endpoint.Resolve(map[string]string{apiclient.ParamStudentID: studentID})
	res := variantResult{Variant: variant, Method: endpoint.Method, Path: path}
	if client == nil {
		res.Error = errors.New("nil client")
		return res
	}

	req, err := http.NewRequestWithContext(ctx, endpoint.Method, strings.TrimRight(base, "/")+path, nil)
	if err != nil {
		res.Error = err
		return res
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := client.Do(req)
	res.Duration = time.Since(start)
	if err != nil {
		res.Error = err
		return res
	}
	defer resp.Body.Close()
	res.Status = resp.StatusCode

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		res.Error = fmt.Errorf("read body: %w", err)
		return res
	}
	env, err := apiclient.DecodeEnvelope(body)
	if err != nil {
		res.Error = err
		return res
	}
	res.Records = looksLikeList(env)
	return res
}

func looksLikeList(env *apiclient.Envelope) bool {
	if env == nil || env.Failed() || len(env.Data) == 0 {
		return false
	}
	trimmed := strings.TrimSpace(string(env.Data))
	return strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "{")
}

func detectVariant(results []variantResult) (string, bool) {
	for _, res := range results {
		if res.ok() {
			return res.Variant, true
		}
	}
	return "", false
}

func printReport(results []variantResult) {
	fmt.Println("Variant Detection Report")
	fmt.Println("====================")
	for _, res := range results {
		status := "OK"
		if res.Error != nil {
			status = "ERROR"
		} else if !res.ok() {
			status = "MISS"
		}
		fmt.Printf("[%s] %s %s %s\n", status, res.Variant, res.Method, res.Path)
		fmt.Printf("  Status: %d (%s)\n", res.Status, res.Duration)
		if res.Error != nil {
			fmt.Printf("  Error: %v\n", res.Error)
		}
	}
}
