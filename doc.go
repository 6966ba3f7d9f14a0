// Copyright 2015 Google Inc. All Rights Reserved.
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

// Package fastcgi implements a FastCGI application runtime: a library
// linked into a long-running process so it can be invoked by an HTTP
// server over the FastCGI wire protocol.
//
// The primary elements of interest are:
//
//  *  Handler, the interface an application implements once; Request
//     is the per-request handle passed to it, carrying the parsed
//     environment and the two output streams.
//
//  *  Config and its With* options, used to configure how the Manager
//     listens (inherited descriptor, Unix socket, or TCP) and how many
//     workers it runs.
//
//  *  NewManager, which constructs the process-wide Manager; Start,
//     Stop, Terminate and Join control its lifecycle.
package fastcgi
