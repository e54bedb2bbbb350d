package fixups

import (
	"errors"
	"strings"

	"github.com/hvmigrate/hvmigrate/internal/result"
)

const instancesMount = "/var/lib/nova/instances"

// lenovo2022 turns the spare NVMe drive into the instance store.
func lenovo2022() Fixup {
	return &commandFixup{
		name:  "2022 Lenovo",
		model: "hv-2022-lenovo",
		steps: []step{
			{command: "mkfs.xfs /dev/nvme0n1 -f"},
			{command: `echo "/dev/nvme0n1 ` + instancesMount + ` xfs rw,relatime,attr2,inode64,logbufs=8,logbsize=32k,noquota" >> /etc/fstab`},
			{command: "mkdir -p " + instancesMount},
			{command: "mount -a"},
			{command: "lsblk", check: func(cmd result.Command) error {
				if !strings.Contains(cmd.Stdout, instancesMount) {
					return errors.New("new mount did not work as expected")
				}
				return nil
			}},
			{command: "systemctl daemon-reload"},
		},
	}
}

// xmaA100 stripes both NVMe drives into one RAID0 array.
func xmaA100() Fixup {
	return &commandFixup{
		name:  "2022 XMA A100",
		model: "xma-hv-2022-a100",
		steps: []step{
			{command: "mdadm --zero-superblock /dev/nvme0n1"},
			{command: "sgdisk -n 1:0:0 /dev/nvme0n1"},
			{command: "sgdisk -t 1:fd00 /dev/nvme0n1"},
			{command: "mdadm --create --verbose /dev/md0 --level=0 --raid-devices=2 /dev/nvme0n1p1 /dev/nvme1n1p1"},
			{command: "mkfs.xfs /dev/md0"},
			{command: "mdadm --detail --scan >> /etc/mdadm.conf"},
		},
	}
}
