// Copyright 2025 Poiesic Systems
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

// Package search answers questions over processed mail.
//
// Search embeds a query, ranks index entries by cosine similarity and
// resolves the matches back to records. Ids the record store cannot resolve,
// or whose record is no longer processed, are dropped so index and store
// skew never fails a query.
//
// Answer retrieves the top matches, renders their summaries into a bounded
// context (lowest-ranked records are dropped first) and asks the answering
// model. With no matches, or when retrieval fails, it still answers with an
// empty context.
package search
