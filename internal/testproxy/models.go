// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package testproxy

import (
	"encoding/json"
	"net/http"
)

// Model is an entry of the /v1/models list.
type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// ModelList is the /v1/models response.
type ModelList struct {
	Object string  `json:"object"`
	Data   []Model `json:"data"`
}

// Models returns the chat-compatible models served by the proxy: OpenAI
// models, Azure deployments, Claude and PaLM.
func Models() ModelList {
	model := func(id string, created int64, owner string) Model {
		return Model{ID: id, Object: "model", Created: created, OwnedBy: owner}
	}
	return ModelList{
		Object: "list",
		Data: []Model{
			model("gpt-3.5-turbo-16k-0613", 1685474247, "openai"),
			model("gpt-3.5-turbo-16k", 1683758102, "openai-internal"),
			model("gpt-3.5-turbo", 1677610602, "openai"),
			model("gpt-3.5-turbo-0613", 1686587434, "openai"),
			model("gpt-4", 1687882411, "openai"),
			model("gpt-4-0613", 1686588896, "openai"),
			model("gpt-35-turbo", 1683758102, "azure-openai"),
			model("gpt-35-turbo-16k", 1683758102, "azure-openai"),
			model("claude-instant-1", 1683758102, "claude"),
			model("claude-2", 1683758102, "claude"),
			model("text-bison-001", 1683758102, "palm"),
			model("chat-bison-001", 1683758102, "palm"),
		},
	}
}

func writeModels(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(Models())
}
