package pkg

import (
	"sort"
	"strconv"
	"strings"
)

// identityDB maps a colon-separated database's first field (the account or
// group name) to its full line, as parsed by parseIdentityDB.
type identityDB map[string]string

const minCarriedID = 1000

// parseIdentityDB parses the contents of a passwd/shadow/group/gshadow
// file into a name -> line map. Blank lines are skipped. A line with no
// colon at all is malformed.
func parseIdentityDB(dbName, content string) (identityDB, error) {
	db := identityDB{}
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		name, _, ok := strings.Cut(line, ":")
		if !ok || name == "" {
			return nil, &MalformedIdentityDatabaseError{Database: dbName, Line: line}
		}
		db[name] = line
	}
	return db, nil
}

// field returns the zero-indexed colon-separated field of line, or "" if
// it does not have enough fields.
func field(line string, index int) string {
	parts := strings.Split(line, ":")
	if index >= len(parts) {
		return ""
	}
	return parts[index]
}

func fieldInt(line string, index int) (int, bool) {
	v, err := strconv.Atoi(field(line, index))
	if err != nil {
		return 0, false
	}
	return v, true
}

// sortedByName returns lines sorted by their own leading name field, so
// output ordering is deterministic regardless of map iteration order (P3).
func sortedByName(lines []string) []string {
	sort.Slice(lines, func(i, j int) bool {
		return field(lines[i], 0) < field(lines[j], 0)
	})
	return lines
}

// carriedNames returns the names present in host but absent from baseline:
// host-only accounts/groups not yet known to have been provisioned by any
// previously-installed image.
func carriedNames(host, baseline identityDB) []string {
	var names []string
	for name := range host {
		if _, inBaseline := baseline[name]; !inBaseline {
			names = append(names, name)
		}
	}
	return names
}

// MergePasswd produces the merged /etc/passwd content: every record from
// the new image verbatim, plus every host-only record (host name absent
// from baseline and from the new image) whose UID is >= 1000 (P1).
func MergePasswd(hostContent, baselineContent, newImageContent string) ([]string, error) {
	host, err := parseIdentityDB("passwd", hostContent)
	if err != nil {
		return nil, err
	}
	baseline, err := parseIdentityDB("passwd", baselineContent)
	if err != nil {
		return nil, err
	}
	newImage, err := parseIdentityDB("passwd", newImageContent)
	if err != nil {
		return nil, err
	}

	merged := make([]string, 0, len(newImage))
	for _, line := range newImage {
		merged = append(merged, line)
	}

	for _, name := range carriedNames(host, baseline) {
		if _, inNew := newImage[name]; inNew {
			continue
		}
		uid, ok := fieldInt(host[name], 2)
		if !ok {
			return nil, &MalformedIdentityDatabaseError{Database: "passwd", Line: host[name]}
		}
		if uid >= minCarriedID {
			merged = append(merged, host[name])
		}
	}

	return sortedByName(merged), nil
}

// MergeShadow produces the merged /etc/shadow content, gating carried
// host-only entries on the corresponding host passwd record's UID, the
// same gate MergePasswd applies, since shadow carries no UID field of
// its own.
func MergeShadow(hostPasswdContent, hostShadowContent, baselineShadowContent, newImageShadowContent string) ([]string, error) {
	hostPasswd, err := parseIdentityDB("passwd", hostPasswdContent)
	if err != nil {
		return nil, err
	}
	hostShadow, err := parseIdentityDB("shadow", hostShadowContent)
	if err != nil {
		return nil, err
	}
	baseline, err := parseIdentityDB("shadow", baselineShadowContent)
	if err != nil {
		return nil, err
	}
	newImage, err := parseIdentityDB("shadow", newImageShadowContent)
	if err != nil {
		return nil, err
	}

	merged := make([]string, 0, len(newImage))
	for _, line := range newImage {
		merged = append(merged, line)
	}

	for _, name := range carriedNames(hostShadow, baseline) {
		if _, inNew := newImage[name]; inNew {
			continue
		}
		passwdLine, ok := hostPasswd[name]
		if !ok {
			continue
		}
		uid, ok := fieldInt(passwdLine, 2)
		if !ok {
			return nil, &MalformedIdentityDatabaseError{Database: "passwd", Line: passwdLine}
		}
		if uid >= minCarriedID {
			merged = append(merged, hostShadow[name])
		}
	}

	return sortedByName(merged), nil
}

// graftMembers appends, to newLine's member-list field (index 3), every
// name from oldLine's member list that is also present in newPasswdNames
// and not already present in newLine's member list (P2).
func graftMembers(oldLine, newLine string, newPasswdNames map[string]bool) string {
	oldMembers := strings.Split(field(oldLine, 3), ",")
	newMembersField := field(newLine, 3)
	existing := map[string]bool{}
	for _, m := range strings.Split(newMembersField, ",") {
		existing[m] = true
	}

	grafted := newLine
	for _, member := range oldMembers {
		if member == "" || !newPasswdNames[member] || existing[member] {
			continue
		}
		if field(grafted, 3) == "" {
			grafted += member
		} else {
			grafted += "," + member
		}
		existing[member] = true
	}
	return grafted
}

func passwdNameSet(passwdLines []string) map[string]bool {
	names := map[string]bool{}
	for _, line := range passwdLines {
		names[field(line, 0)] = true
	}
	return names
}

// MergeGroup produces the merged /etc/group content: groups newly added
// by the image, grafted host-only members onto groups present in all
// three sources, and host-only groups with GID >= 1000 (P2).
func MergeGroup(hostContent, baselineContent, newImageContent string, newPasswdLines []string) ([]string, error) {
	host, err := parseIdentityDB("group", hostContent)
	if err != nil {
		return nil, err
	}
	baseline, err := parseIdentityDB("group", baselineContent)
	if err != nil {
		return nil, err
	}
	newImage, err := parseIdentityDB("group", newImageContent)
	if err != nil {
		return nil, err
	}
	newPasswdNames := passwdNameSet(newPasswdLines)

	var merged []string

	for name, line := range newImage {
		if _, inBaseline := baseline[name]; !inBaseline {
			merged = append(merged, line)
		}
	}

	for name, newLine := range newImage {
		if _, inBaseline := baseline[name]; !inBaseline {
			continue
		}
		oldLine, inHost := host[name]
		if !inHost {
			continue
		}
		merged = append(merged, graftMembers(oldLine, newLine, newPasswdNames))
	}

	for _, name := range carriedNames(host, baseline) {
		if _, inNew := newImage[name]; inNew {
			continue
		}
		gid, ok := fieldInt(host[name], 2)
		if !ok {
			return nil, &MalformedIdentityDatabaseError{Database: "group", Line: host[name]}
		}
		if gid >= minCarriedID {
			merged = append(merged, host[name])
		}
	}

	return sortedByName(merged), nil
}

// MergeGshadow produces the merged /etc/gshadow content, mirroring
// MergeGroup's grafting logic, but gating carried host-only entries on
// the corresponding host group record's GID (gshadow carries no numeric
// GID field of its own).
func MergeGshadow(hostGroupContent, hostGshadowContent, baselineGshadowContent, newImageGshadowContent string, newPasswdLines []string) ([]string, error) {
	hostGroup, err := parseIdentityDB("group", hostGroupContent)
	if err != nil {
		return nil, err
	}
	hostGshadow, err := parseIdentityDB("gshadow", hostGshadowContent)
	if err != nil {
		return nil, err
	}
	baseline, err := parseIdentityDB("gshadow", baselineGshadowContent)
	if err != nil {
		return nil, err
	}
	newImage, err := parseIdentityDB("gshadow", newImageGshadowContent)
	if err != nil {
		return nil, err
	}
	newPasswdNames := passwdNameSet(newPasswdLines)

	var merged []string

	for name, line := range newImage {
		if _, inBaseline := baseline[name]; !inBaseline {
			merged = append(merged, line)
		}
	}

	for name, newLine := range newImage {
		if _, inBaseline := baseline[name]; !inBaseline {
			continue
		}
		oldLine, inHost := hostGshadow[name]
		if !inHost {
			continue
		}
		merged = append(merged, graftMembers(oldLine, newLine, newPasswdNames))
	}

	for _, name := range carriedNames(hostGshadow, baseline) {
		if _, inNew := newImage[name]; inNew {
			continue
		}
		groupLine, ok := hostGroup[name]
		if !ok {
			continue
		}
		gid, ok := fieldInt(groupLine, 2)
		if !ok {
			return nil, &MalformedIdentityDatabaseError{Database: "group", Line: groupLine}
		}
		if gid >= minCarriedID {
			merged = append(merged, hostGshadow[name])
		}
	}

	return sortedByName(merged), nil
}
