package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Settings 运行期可变的扁平键值设置
// 启动时读取，退出时写回（模型选择、功能开关）
type Settings struct {
	MainModel   string          `mapstructure:"main_model"`
	VisionModel string          `mapstructure:"vision_model"`
	AssistModel string          `mapstructure:"assist_model"`
	Features    map[string]bool `mapstructure:"features"`
}

// LoadSettings 读取设置文件
// 文件不存在时回落到配置中的默认模型选择
func LoadSettings(path string, cfg *Config) (*Settings, error) {
	s := &Settings{
		MainModel:   cfg.AI.MainModel,
		VisionModel: cfg.AI.VisionModel,
		AssistModel: cfg.AI.AssistModel,
		Features:    map[string]bool{},
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return s, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	if err := v.Unmarshal(s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}
	if s.Features == nil {
		s.Features = map[string]bool{}
	}
	return s, nil
}

// Save 写回设置文件
func (s *Settings) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create settings dir: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.Set("main_model", s.MainModel)
	v.Set("vision_model", s.VisionModel)
	v.Set("assist_model", s.AssistModel)
	v.Set("features", s.Features)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	return nil
}
