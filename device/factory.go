package device

type Factory interface {
	FromSpec(spec DeviceSpec) (Profile, error)
}

type FactoryDocs interface {
	Help() string
}
