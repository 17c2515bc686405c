/*
Copyright 2026 The LidarCtl Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package consumer

import "github.com/lidarctl/controlplane/pkg/eventbus"

// FailedEvent is the body published on the "ingest.failed" routing key
// (spec §6) when a message never reaches pkg/ingestusecase.UseCase.Start
// at all: a shape or structural validation failure. It is the same wire
// shape pkg/ingestusecase publishes for failures raised inside Start, so
// it is just an alias onto the shared definition in pkg/eventbus.
type FailedEvent = eventbus.FailedEvent
