// Copyright 2025 The Barnacle Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package log

import (
	"context"

	"github.com/cockroachdb/logtags"
)

// AmbientContext is a helper type used to annotate contexts with a fixed set
// of log tags. A component that embeds an AmbientContext configures the tags
// once (e.g. at construction) and then uses AnnotateCtx on the contexts
// passed into its methods, so that all its log output carries the tags.
//
// The zero value is ready to use and annotates nothing.
type AmbientContext struct {
	tags *logtags.Buffer
}

// AddLogTag adds a tag to the ambient context. Not safe for concurrent use
// with AnnotateCtx; tags are expected to be set up before the component
// starts operating.
func (ac *AmbientContext) AddLogTag(name string, value interface{}) {
	ac.tags = ac.tags.Add(name, value)
}

// AnnotateCtx returns a context derived from ctx carrying the ambient tags.
// Tags already present in ctx are preserved; ambient tags with the same name
// override them.
func (ac *AmbientContext) AnnotateCtx(ctx context.Context) context.Context {
	if ac.tags == nil {
		return ctx
	}
	return logtags.AddTags(ctx, ac.tags)
}
