// Package admin provides the `sharedlog` command line: offline repair and
// inspection of containers, stream maintenance and the daemon entrypoint.
//
// Usage
//
//	sharedlog create -l /var/lib/sharedlog/c1 --extent-size 1048576 --max-extents 256
//	sharedlog stream create -l /var/lib/sharedlog/c1 --alias journal
//	sharedlog dump -l /var/lib/sharedlog/c1 --filter 'length > 0' --json
//
//	# report the length, then cut the tail back to offset 4096
//	sharedlog truncate -l /var/lib/sharedlog/c1 -s journal
//	sharedlog truncate -l:/var/lib/sharedlog/c1 -s:journal -r:4096
//
//	sharedlog serve --config /etc/sharedlog.yaml
//	sharedlog health --addr 127.0.0.1:7070
//
// The single-letter colon form (-l:<path>) is rewritten to the long flags
// before parsing. -g defaults to {3CA2CCDA-DD0F-49c8-A741-62AAC0D4EB62}.
//
// Exit status: 0 on success, 1 for malformed arguments (usage is printed),
// 2 when a request is refused without changing anything (for example a
// truncation offset at or beyond the current length), 3 for any other
// failure.
package admin
