package splitmerge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubmodelArgv(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want []string
	}{
		{
			name: "drops split and project options",
			args: []string{"--project-path", "/data", "--split", "400", "--split-overlap", "80", "field"},
			want: []string{"--project-path", "/data/field/submodels", "submodel_0003"},
		},
		{
			name: "drops inline values",
			args: []string{"--split=400", "--project-path=/data", "--rerun-from=dem", "field"},
			want: []string{"--project-path", "/data/field/submodels", "submodel_0003"},
		},
		{
			name: "drops rerun flags",
			args: []string{"--rerun-all", "--rerun", "opensfm", "field"},
			want: []string{"--project-path", "/data/field/submodels", "submodel_0003"},
		},
		{
			name: "keeps other options with their values",
			args: []string{"--dsm", "--dem-radius", "0.5,1", "-v", "--split", "400", "--ground-method=smrf", "field"},
			want: []string{"--dsm", "--dem-radius", "0.5,1", "-v", "--ground-method=smrf",
				"--project-path", "/data/field/submodels", "submodel_0003"},
		},
		{
			name: "single dash form",
			args: []string{"-split", "400", "-dtm", "field"},
			want: []string{"-dtm", "--project-path", "/data/field/submodels", "submodel_0003"},
		},
		{
			name: "no arguments",
			args: nil,
			want: []string{"--project-path", "/data/field/submodels", "submodel_0003"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SubmodelArgv(tt.args, "/data/field/submodels", "submodel_0003")
			assert.Equal(t, tt.want, got)
		})
	}
}
