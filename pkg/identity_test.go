package pkg

import (
	"reflect"
	"testing"
)

func TestMergePasswd_CarriesHostOnlyAboveUIDFloor(t *testing.T) {
	host := "root:x:0:0:root:/root:/bin/bash\nalice:x:1001:1001::/home/alice:/bin/bash\n"
	baseline := "root:x:0:0:root:/root:/bin/bash\n"
	newImage := "root:x:0:0:root:/root:/bin/bash\nbin:x:1:1::/:/usr/bin/nologin\n"

	got, err := MergePasswd(host, baseline, newImage)
	if err != nil {
		t.Fatalf("MergePasswd: %v", err)
	}
	want := []string{
		"alice:x:1001:1001::/home/alice:/bin/bash",
		"bin:x:1:1::/:/usr/bin/nologin",
		"root:x:0:0:root:/root:/bin/bash",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("MergePasswd = %v, want %v", got, want)
	}
}

func TestMergePasswd_SkipsSystemAccountBelowFloor(t *testing.T) {
	host := "root:x:0:0:root:/root:/bin/bash\ndaemon:x:999:999::/:/usr/bin/nologin\n"
	baseline := "root:x:0:0:root:/root:/bin/bash\n"
	newImage := "root:x:0:0:root:/root:/bin/bash\n"

	got, err := MergePasswd(host, baseline, newImage)
	if err != nil {
		t.Fatalf("MergePasswd: %v", err)
	}
	want := []string{"root:x:0:0:root:/root:/bin/bash"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("MergePasswd = %v, want %v", got, want)
	}
}

func TestMergePasswd_SkipsNameAlreadyInNewImage(t *testing.T) {
	host := "root:x:0:0:root:/root:/bin/bash\nalice:x:1001:1001::/home/alice:/bin/bash\n"
	baseline := "root:x:0:0:root:/root:/bin/bash\n"
	newImage := "root:x:0:0:root:/root:/bin/bash\nalice:x:1001:1001::/home/alice:/bin/zsh\n"

	got, err := MergePasswd(host, baseline, newImage)
	if err != nil {
		t.Fatalf("MergePasswd: %v", err)
	}
	want := []string{
		"alice:x:1001:1001::/home/alice:/bin/zsh",
		"root:x:0:0:root:/root:/bin/bash",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("MergePasswd = %v, want %v", got, want)
	}
}

func TestMergePasswd_MalformedLineIsFatal(t *testing.T) {
	_, err := MergePasswd("not-a-passwd-line-at-all\n", "", "")
	if err == nil {
		t.Fatal("expected error for malformed passwd line")
	}
	if _, ok := err.(*MalformedIdentityDatabaseError); !ok {
		t.Errorf("error = %T, want *MalformedIdentityDatabaseError", err)
	}
}

func TestMergePasswd_Idempotent(t *testing.T) {
	host := "root:x:0:0:root:/root:/bin/bash\nalice:x:1001:1001::/home/alice:/bin/bash\n"
	baseline := "root:x:0:0:root:/root:/bin/bash\n"
	newImage := "root:x:0:0:root:/root:/bin/bash\nbin:x:1:1::/:/usr/bin/nologin\n"

	first, err := MergePasswd(host, baseline, newImage)
	if err != nil {
		t.Fatalf("first MergePasswd: %v", err)
	}
	second, err := MergePasswd(host, baseline, newImage)
	if err != nil {
		t.Fatalf("second MergePasswd: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("MergePasswd not idempotent: %v != %v", first, second)
	}
}

func TestMergeShadow_GatesOnHostPasswdUID(t *testing.T) {
	hostPasswd := "root:x:0:0:root:/root:/bin/bash\nalice:x:1001:1001::/home/alice:/bin/bash\n"
	hostShadow := "root:!:19000:0:99999:7:::\nalice:$6$abc:19000:0:99999:7:::\n"
	baselineShadow := "root:!:19000:0:99999:7:::\n"
	newImageShadow := "root:!:19000:0:99999:7:::\n"

	got, err := MergeShadow(hostPasswd, hostShadow, baselineShadow, newImageShadow)
	if err != nil {
		t.Fatalf("MergeShadow: %v", err)
	}
	want := []string{
		"alice:$6$abc:19000:0:99999:7:::",
		"root:!:19000:0:99999:7:::",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("MergeShadow = %v, want %v", got, want)
	}
}

func TestMergeGroup_GraftsHostOnlyMembers(t *testing.T) {
	host := "wheel:x:10:root,alice\n"
	baseline := "wheel:x:10:root\n"
	newImage := "wheel:x:10:root\n"
	newPasswd := []string{"root:x:0:0:root:/root:/bin/bash", "alice:x:1001:1001::/home/alice:/bin/bash"}

	got, err := MergeGroup(host, baseline, newImage, newPasswd)
	if err != nil {
		t.Fatalf("MergeGroup: %v", err)
	}
	want := []string{"wheel:x:10:root,alice"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("MergeGroup = %v, want %v", got, want)
	}
}

func TestMergeGroup_GraftSkipsMemberNotInNewPasswd(t *testing.T) {
	host := "wheel:x:10:root,ghost\n"
	baseline := "wheel:x:10:root\n"
	newImage := "wheel:x:10:root\n"
	newPasswd := []string{"root:x:0:0:root:/root:/bin/bash"}

	got, err := MergeGroup(host, baseline, newImage, newPasswd)
	if err != nil {
		t.Fatalf("MergeGroup: %v", err)
	}
	want := []string{"wheel:x:10:root"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("MergeGroup = %v, want %v", got, want)
	}
}

func TestMergeGroup_CarriesHostOnlyGroupAboveFloor(t *testing.T) {
	host := "wheel:x:10:root\ndevs:x:1500:alice\n"
	baseline := "wheel:x:10:root\n"
	newImage := "wheel:x:10:root\n"
	newPasswd := []string{"root:x:0:0:root:/root:/bin/bash"}

	got, err := MergeGroup(host, baseline, newImage, newPasswd)
	if err != nil {
		t.Fatalf("MergeGroup: %v", err)
	}
	want := []string{"devs:x:1500:alice", "wheel:x:10:root"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("MergeGroup = %v, want %v", got, want)
	}
}

func TestMergeGroup_NewImageOnlyGroupIsAdded(t *testing.T) {
	host := "wheel:x:10:root\n"
	baseline := "wheel:x:10:root\n"
	newImage := "wheel:x:10:root\npodman:x:995:\n"
	newPasswd := []string{"root:x:0:0:root:/root:/bin/bash"}

	got, err := MergeGroup(host, baseline, newImage, newPasswd)
	if err != nil {
		t.Fatalf("MergeGroup: %v", err)
	}
	want := []string{"podman:x:995:", "wheel:x:10:root"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("MergeGroup = %v, want %v", got, want)
	}
}

func TestMergeGshadow_GraftsHostOnlyMembers(t *testing.T) {
	hostGroup := "wheel:x:10:root,alice\n"
	hostGshadow := "wheel:!::root,alice\n"
	baselineGshadow := "wheel:!::root\n"
	newImageGshadow := "wheel:!::root\n"
	newPasswd := []string{"root:x:0:0:root:/root:/bin/bash", "alice:x:1001:1001::/home/alice:/bin/bash"}

	got, err := MergeGshadow(hostGroup, hostGshadow, baselineGshadow, newImageGshadow, newPasswd)
	if err != nil {
		t.Fatalf("MergeGshadow: %v", err)
	}
	want := []string{"wheel:!::root,alice"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("MergeGshadow = %v, want %v", got, want)
	}
}
