package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/marcleai/statusboard/internal/authref"
	"github.com/marcleai/statusboard/internal/catalog"
	"github.com/marcleai/statusboard/internal/resilience"
	"github.com/marcleai/statusboard/internal/status"
)

const maxResponseBytes = 4 << 20

// AuditedService is a service as reported by the admin API.
type AuditedService struct {
	catalog.ServiceDefinition
	CredentialPresent *bool
}

// LiveStatus is one entry of /api/status.
type LiveStatus struct {
	Status status.Status
	Detail string
}

// Issue is one configuration or health problem found by Audit.
type Issue struct {
	ServiceID string
	Problem   string
}

// Audit lists the problems of every enabled service, ordered by service id.
func Audit(services []AuditedService, live map[string]LiveStatus) []Issue {
	var issues []Issue
	add := func(id, format string, args ...any) {
		issues = append(issues, Issue{ServiceID: id, Problem: fmt.Sprintf(format, args...)})
	}

	for _, s := range services {
		if !s.Enabled {
			continue
		}
		if strings.TrimSpace(s.URL) == "" {
			add(s.ID, "enabled without a url")
		}
		if ref := s.AuthRef; ref != nil {
			switch {
			case ref.Scheme == authref.SchemeHeader && strings.TrimSpace(ref.HeaderName) == "":
				add(s.ID, "header auth without header_name")
			case ref.Scheme == authref.SchemeQueryParam && strings.TrimSpace(ref.ParamName) == "":
				add(s.ID, "query_param auth without param_name")
			}
		}
		if s.CredentialPresent != nil && !*s.CredentialPresent && s.AuthRef != nil {
			add(s.ID, "credential missing (env %s)", s.AuthRef.Env)
		}
		if ls, ok := live[s.ID]; ok && ls.Status != status.Healthy && ls.Status != status.Unknown {
			if ls.Detail != "" {
				add(s.ID, "%s: %s", ls.Status, ls.Detail)
			} else {
				add(s.ID, "%s", ls.Status)
			}
		}
	}

	sort.SliceStable(issues, func(i, j int) bool { return issues[i].ServiceID < issues[j].ServiceID })
	return issues
}

type auditFlags struct {
	baseURL string
	token   string
	strict  bool
}

func newAuditCommand(opts Options) *cobra.Command {
	f := auditFlags{}

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Report configuration problems of a running statusboard",
		Long: `Fetch the admin service list and the current status from a running
statusboard and print every enabled service that is misconfigured or unhealthy.
The admin token is read from --token, ADMIN_TOKEN or ADMIN_TOKEN_FILE.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			token := f.token
			if token == "" {
				token, _ = opts.Env.Lookup("ADMIN_TOKEN")
			}
			if token == "" {
				return fmt.Errorf("admin token required: set --token or ADMIN_TOKEN")
			}

			client := resilience.NewClient(resilience.DefaultClientConfig("statusboard"))
			base := strings.TrimRight(f.baseURL, "/")

			services, err := fetchServices(cmd.Context(), client, base, token)
			if err != nil {
				return err
			}
			live, err := fetchStatus(cmd.Context(), client, base)
			if err != nil {
				return err
			}

			issues := Audit(services, live)
			out := cmd.OutOrStdout()
			for _, is := range issues {
				fmt.Fprintf(out, "%s: %s\n", is.ServiceID, is.Problem)
			}
			if len(issues) == 0 {
				fmt.Fprintf(out, "no issues across %d services\n", len(services))
				return nil
			}
			fmt.Fprintf(out, "\n%d issues across %d services\n", len(issues), len(services))
			if f.strict {
				return fmt.Errorf("%d issues found", len(issues))
			}
			return nil
		},
	}

	defaultURL := "http://localhost:8080"
	if v, ok := opts.Env.Lookup("STATUSBOARD_URL"); ok {
		defaultURL = v
	}
	cmd.Flags().StringVar(&f.baseURL, "url", defaultURL, "statusboard base URL")
	cmd.Flags().StringVar(&f.token, "token", "", "admin bearer token")
	cmd.Flags().BoolVar(&f.strict, "strict", false, "exit non-zero when issues are found")
	return cmd
}

func fetchServices(ctx context.Context, client *resilience.Client, base, token string) ([]AuditedService, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	body, err := get(ctx, client, base+"/api/admin/services", header)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Services []json.RawMessage `json:"services"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decoding admin services: %w", err)
	}

	// ServiceDefinition has its own decoder, which would swallow
	// credential_present if the two were decoded together.
	services := make([]AuditedService, 0, len(payload.Services))
	for _, raw := range payload.Services {
		var def catalog.ServiceDefinition
		if err := json.Unmarshal(raw, &def); err != nil {
			return nil, fmt.Errorf("decoding admin services: %w", err)
		}
		var extra struct {
			CredentialPresent *bool `json:"credential_present"`
		}
		if err := json.Unmarshal(raw, &extra); err != nil {
			return nil, fmt.Errorf("decoding admin services: %w", err)
		}
		services = append(services, AuditedService{ServiceDefinition: def, CredentialPresent: extra.CredentialPresent})
	}
	return services, nil
}

func fetchStatus(ctx context.Context, client *resilience.Client, base string) (map[string]LiveStatus, error) {
	body, err := get(ctx, client, base+"/api/status", nil)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("decoding status: invalid JSON")
	}

	live := make(map[string]LiveStatus)
	gjson.GetBytes(body, "services").ForEach(func(_, v gjson.Result) bool {
		live[v.Get("id").String()] = LiveStatus{
			Status: status.Status(v.Get("status").String()),
			Detail: v.Get("detail").String(),
		}
		return true
	})
	return live, nil
}

func get(ctx context.Context, client *resilience.Client, url string, header http.Header) ([]byte, error) {
	resp, err := client.Get(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, fmt.Errorf("GET %s: admin token rejected", url)
	case resp.StatusCode == http.StatusServiceUnavailable && header != nil:
		return nil, fmt.Errorf("GET %s: admin API disabled on the server", url)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("GET %s: unexpected status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	return body, nil
}
