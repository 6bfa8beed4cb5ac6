package train

import (
	"os"

	"gopkg.in/yaml.v3"
)

// ReportFile is written next to the model artifacts.
const ReportFile = "training_report.yaml"

// EpochStats is one line of training history. Validation fields are absent when
// the validation set is empty.
type EpochStats struct {
	Epoch       int      `yaml:"epoch"`
	Loss        float64  `yaml:"loss"`
	Accuracy    float64  `yaml:"accuracy"`
	ValLoss     *float64 `yaml:"val_loss,omitempty"`
	ValAccuracy *float64 `yaml:"val_accuracy,omitempty"`
}

// Report summarizes a training run.
type Report struct {
	Backbone    string         `yaml:"backbone"`
	FeatureDim  int            `yaml:"feature_dim"`
	Epochs      int            `yaml:"epochs"`
	BatchSize   int            `yaml:"batch_size"`
	Seed        int64          `yaml:"seed"`
	Records     int            `yaml:"records"`
	Rejected    int            `yaml:"rejected"`
	Missing     int            `yaml:"missing_images"`
	TrainSize   int            `yaml:"train_size"`
	ValSize     int            `yaml:"validation_size"`
	ClassCounts map[string]int `yaml:"class_counts"`
	History     []EpochStats   `yaml:"history"`
	Artifacts   []string       `yaml:"artifacts"`
}

// Final returns the last epoch, or false when no epoch ran.
func (r Report) Final() (EpochStats, bool) {
	if len(r.History) == 0 {
		return EpochStats{}, false
	}
	return r.History[len(r.History)-1], true
}

// WriteReport stores r as YAML at path.
func WriteReport(path string, r Report) error {
	out, err := yaml.Marshal(r)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0644)
}

// ReadReport loads a report written by WriteReport.
func ReadReport(path string) (Report, error) {
	var r Report
	data, err := os.ReadFile(path)
	if err != nil {
		return r, err
	}
	err = yaml.Unmarshal(data, &r)
	return r, err
}
