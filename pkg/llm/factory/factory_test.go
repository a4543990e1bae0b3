// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package factory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateProvider(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")

	tests := []struct {
		name     string
		config   FactoryConfig
		provider string
		wantName string
		wantErr  string
	}{
		{name: "default openai", config: FactoryConfig{OpenAIAPIKey: "sk"}, wantName: "openai"},
		{name: "anthropic", config: FactoryConfig{AnthropicAPIKey: "ak"}, provider: "anthropic", wantName: "anthropic"},
		{name: "missing openai key", config: FactoryConfig{}, provider: "openai", wantErr: "openai API key"},
		{name: "missing anthropic key", config: FactoryConfig{}, provider: "anthropic", wantErr: "anthropic API key"},
		{name: "unknown", config: FactoryConfig{}, provider: "bedrock", wantErr: "unsupported provider"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProviderFactory(tt.config).CreateProvider(tt.provider)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, p.Name())
		})
	}
}

func TestCreateProvider_EnvKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "from-env")
	p, err := NewProviderFactory(FactoryConfig{OpenAIModel: "gpt-4o"}).CreateProvider("")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", p.Model())

	e, err := NewProviderFactory(FactoryConfig{}).CreateEmbedder()
	require.NoError(t, err)
	assert.NotNil(t, e)
}
