// Copyright (c) 2026 The ratunnel Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"encoding/json"
	"net/http"
	"time"
)

var startedAt = time.Now()

type uptimeResponse struct {
	Uptime struct {
		Seconds   float64 `json:"seconds"`
		Formatted string  `json:"formatted"`
	} `json:"uptime"`
}

func uptimeHandler(w http.ResponseWriter, r *http.Request) {
	d := time.Since(startedAt)
	resp := uptimeResponse{}
	resp.Uptime.Seconds = d.Seconds()
	resp.Uptime.Formatted = d.Round(time.Second).String()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
