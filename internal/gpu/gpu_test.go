package gpu

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robert-malhotra/hyp3-srg/internal/processor"
)

type fakeCounter struct {
	out string
	err error
}

func (f fakeCounter) Output(ctx context.Context, module processor.Module, args []string, workDir string) ([]byte, error) {
	if module != processor.ModuleHowManyGPUs {
		return nil, errors.New("unexpected module " + string(module))
	}
	return []byte(f.out), f.err
}

func query(out string, err error) func(context.Context) ([]byte, error) {
	return func(context.Context) ([]byte, error) {
		return []byte(out), err
	}
}

func TestSelect(t *testing.T) {
	tests := []struct {
		name    string
		count   string
		smi     string
		smiErr  error
		want    *int
		wantErr bool
	}{
		{name: "no gpus", count: "0", want: nil},
		{name: "least loaded", count: "3", smi: "0, 80, 1000\n1, 10, 500\n2, 10, 100\n", want: intPtr(2)},
		{name: "all busy", count: "2", smi: "0, 90, 10\n1, 95, 10\n", want: nil},
		{name: "query failure", count: "2", smiErr: errors.New("nvidia-smi: not found"), want: intPtr(0)},
		{name: "garbled query", count: "1", smi: "n/a\n", want: intPtr(0)},
		{name: "bad count", count: "many", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSelector(fakeCounter{out: tt.count}).WithQuery(query(tt.smi, tt.smiErr))
			got, err := s.Select(context.Background(), t.TempDir())
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDevices(t *testing.T) {
	devices, err := ParseDevices([]byte("0, 5, 300\n\n1, 70, 9000\n"))
	require.NoError(t, err)
	assert.Equal(t, []Device{{Index: 0, Utilization: 5, MemoryUsed: 300}, {Index: 1, Utilization: 70, MemoryUsed: 9000}}, devices)
}
