package mcpserver

// TagFormatContract describes the provenance attribute layout and the
// result fields returned by the scan tools.
const TagFormatContract = `# Provenance Tag Format

Files touched by certain privileged write operations carry an extended
attribute named ` + "`com.apple.provenance`" + `. Its value is a small binary blob:

| Offset | Size | Meaning |
|---|---|---|
| 0 | 3 | format prefix (not interpreted) |
| 3 | 8 | signed 64-bit key, native byte order |
| 11 | rest | ignored |

A blob shorter than 11 bytes is malformed. The key is the primary key of
a row in the system provenance tracking table, which names the
application responsible for the write.

## Result fields

- ` + "`filePath`" + ` – the examined entry
- ` + "`creator`" + ` – the responsible application path, or ` + "`unknown`" + ` when the key has no row
- ` + "`pk`" + ` – the key as ` + "`0x`" + ` followed by 16 lower-case hex digits
- ` + "`bundleId`" + `, ` + "`teamIdentifier`" + `, ` + "`signingIdentifier`" + ` – code-signing identifiers, omitted when unknown
- ` + "`timestamp`" + ` – seconds since the epoch when the row was recorded, omitted when unknown

Entries without the attribute are not reported by tree scans. Record
lookups accept the ` + "`pk`" + ` string or a decimal key and follow ` + "`link_pk`" + `
references into a ` + "`chain`" + `.
`
