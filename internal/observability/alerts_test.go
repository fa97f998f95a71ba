package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	jobmetrics "github.com/odyssey-erp/backoffice/internal/jobs"
)

type alertFile struct {
	Groups []struct {
		Name  string `yaml:"name"`
		Rules []struct {
			Alert       string            `yaml:"alert"`
			Expr        string            `yaml:"expr"`
			For         string            `yaml:"for"`
			Labels      map[string]string `yaml:"labels"`
			Annotations map[string]string `yaml:"annotations"`
		} `yaml:"rules"`
	} `yaml:"groups"`
}

var metricName = regexp.MustCompile(`backoffice_[a-z_]+`)

// exportedNames returns every backoffice_* family the API and worker can emit.
func exportedNames(t *testing.T) map[string]bool {
	t.Helper()
	m := NewMetrics()
	jobs := jobmetrics.NewMetrics(m.Registerer())
	_ = jobs.Track("procurement:batch").End(nil)
	_ = jobs.Track("mail:send").End(errors.New("refused"))
	m.ObserveEmail("purchase_order", nil)
	m.Middleware(http.NotFoundHandler()).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	families, err := m.registry.Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
		// histogram series are queried through their suffixed names
		names[f.GetName()+"_bucket"] = true
		names[f.GetName()+"_count"] = true
	}
	return names
}

func TestBackofficeAlertRules(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("..", "..", "deploy", "prometheus", "alerts", "backoffice.yml"))
	require.NoError(t, err)

	var file alertFile
	require.NoError(t, yaml.Unmarshal(data, &file))
	require.Len(t, file.Groups, 1)
	require.Equal(t, "backoffice", file.Groups[0].Name)

	severities := map[string]string{
		"HighErrorRate":         "critical",
		"PurchaseBatchFailing":  "critical",
		"SupplierEmailFailures": "warning",
		"PurchaseBatchStale":    "warning",
	}
	exported := exportedNames(t)

	rules := file.Groups[0].Rules
	require.Len(t, rules, len(severities))
	for _, rule := range rules {
		want, ok := severities[rule.Alert]
		require.True(t, ok, "unexpected rule %q", rule.Alert)
		require.Equal(t, want, rule.Labels["severity"], rule.Alert)
		require.NotEmpty(t, rule.Annotations["summary"], rule.Alert)
		require.NotEmpty(t, rule.Annotations["description"], rule.Alert)
		require.NotEmpty(t, rule.For, rule.Alert)

		used := metricName.FindAllString(rule.Expr, -1)
		require.NotEmpty(t, used, "rule %s queries no backoffice metric", rule.Alert)
		for _, name := range used {
			require.True(t, exported[name], "rule %s queries unknown metric %s", rule.Alert, name)
		}
	}
}
