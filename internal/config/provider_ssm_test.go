package config

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// mockSSMClient returns canned parameters and records batch sizes.
type mockSSMClient struct {
	params     map[string]string
	invalid    []string
	err        error
	batchSizes []int
}

func (m *mockSSMClient) GetParameters(_ context.Context, input *ssm.GetParametersInput, _ ...func(*ssm.Options)) (*ssm.GetParametersOutput, error) {
	m.batchSizes = append(m.batchSizes, len(input.Names))
	if m.err != nil {
		return nil, m.err
	}
	out := &ssm.GetParametersOutput{}
	for _, name := range input.Names {
		if v, ok := m.params[name]; ok {
			out.Parameters = append(out.Parameters, ssmtypes.Parameter{
				Name:  aws.String(name),
				Value: aws.String(v),
			})
		}
	}
	for _, inv := range m.invalid {
		for _, name := range input.Names {
			if name == inv {
				out.InvalidParameters = append(out.InvalidParameters, inv)
			}
		}
	}
	return out, nil
}

func TestSSMProviderResolvesBatch(t *testing.T) {
	client := &mockSSMClient{params: map[string]string{
		"/p/a": "alpha",
		"/p/b": "beta",
	}}
	p := newSSMProviderWithClient("us-east-1", client)

	got, err := p.GetParametersBatch(context.Background(), []string{"/p/a", "/p/b"})
	if err != nil {
		t.Fatalf("GetParametersBatch: %v", err)
	}
	if got["/p/a"] != "alpha" || got["/p/b"] != "beta" {
		t.Errorf("resolved = %v", got)
	}
}

func TestSSMProviderSplitsLargeBatches(t *testing.T) {
	params := make(map[string]string)
	keys := make([]string, 0, 23)
	for i := 0; i < 23; i++ {
		k := fmt.Sprintf("/p/%d", i)
		params[k] = fmt.Sprintf("v%d", i)
		keys = append(keys, k)
	}
	client := &mockSSMClient{params: params}
	p := newSSMProviderWithClient("us-east-1", client)

	got, err := p.GetParametersBatch(context.Background(), keys)
	if err != nil {
		t.Fatalf("GetParametersBatch: %v", err)
	}
	if len(got) != 23 {
		t.Errorf("resolved %d params, want 23", len(got))
	}
	want := []int{10, 10, 3}
	if len(client.batchSizes) != len(want) {
		t.Fatalf("batch sizes = %v, want %v", client.batchSizes, want)
	}
	for i, n := range want {
		if client.batchSizes[i] != n {
			t.Errorf("batch %d size = %d, want %d", i, client.batchSizes[i], n)
		}
	}
}

func TestSSMProviderInvalidParameter(t *testing.T) {
	client := &mockSSMClient{
		params:  map[string]string{"/p/a": "alpha"},
		invalid: []string{"/p/missing"},
	}
	p := newSSMProviderWithClient("us-east-1", client)

	if _, err := p.GetParametersBatch(context.Background(), []string{"/p/a", "/p/missing"}); err == nil {
		t.Fatal("expected error for invalid parameter")
	}
}

func TestSSMProviderClientError(t *testing.T) {
	wantErr := errors.New("throttled")
	p := newSSMProviderWithClient("us-east-1", &mockSSMClient{err: wantErr})

	if _, err := p.GetParametersBatch(context.Background(), []string{"/p/a"}); !errors.Is(err, wantErr) {
		t.Errorf("error = %v, want wrapped %v", err, wantErr)
	}
}

func TestSSMProviderEmptyKeys(t *testing.T) {
	p := newSSMProviderWithClient("us-east-1", &mockSSMClient{})
	got, err := p.GetParametersBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("GetParametersBatch: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("resolved = %v, want empty", got)
	}
}

func TestSSMProviderContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newSSMProviderWithClient("us-east-1", &mockSSMClient{params: map[string]string{"/p/a": "x"}})
	if _, err := p.GetParametersBatch(ctx, []string{"/p/a"}); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestEnvVarProvider(t *testing.T) {
	t.Setenv("PATHSYNCH_TEST_SECRET", "from-env")

	p := NewEnvVarProvider()
	got, err := p.GetParametersBatch(context.Background(), []string{"PATHSYNCH_TEST_SECRET", "PATHSYNCH_TEST_ABSENT"})
	if err != nil {
		t.Fatalf("GetParametersBatch: %v", err)
	}
	if got["PATHSYNCH_TEST_SECRET"] != "from-env" {
		t.Errorf("resolved = %v", got)
	}
	if _, ok := got["PATHSYNCH_TEST_ABSENT"]; ok {
		t.Error("absent keys must be omitted, not empty")
	}
}
