// Package pkg provides the core libraries for debcrate Debian packaging.
//
// # Overview
//
// Debcrate turns a crate published on crates.io into the skeleton of a
// Debian source package: a sanitized source tree plus the derived package
// identity (names, semver suffixes, relations, descriptions). The pkg
// directory is organized into four main areas:
//
//  1. [crate] and [debian] - Domain logic (feature resolution, archive
//     extraction, Debian naming and relations)
//  2. [cache], [httputil] and [observability] - Infrastructure
//  3. [integrations] - The crates.io registry client
//  4. [pipeline] - Orchestration (fetch, extract, resolve)
//
// # Architecture
//
// The typical data flow through debcrate:
//
//	crates.io API + sparse index
//	         |
//	         v
//	integrations/crates (fetch metadata, download .crate)
//	         |
//	         v
//	crate (unpack safely, resolve the feature graph)
//	         |
//	         v
//	debian (names, suffixes, relations, descriptions)
//	         |
//	         v
//	pipeline (assemble the packaging result)
//
// The [render] package sits to the side and draws resolved feature graphs
// as Graphviz DOT, SVG or PNG for inspection.
package pkg
