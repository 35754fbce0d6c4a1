package commands

import "fmt"

type Result struct {
	Message string
}

type Handlers struct {
	Add     func(AddArgs) (Result, error)
	Done    func(TargetArgs) (Result, error)
	Disable func(DisableArgs) (Result, error)
	Enable  func(TargetArgs) (Result, error)
	Delete  func(TargetArgs) (Result, error)
	Share   func(ShareArgs) (Result, error)
	Unshare func(TargetArgs) (Result, error)
	Show    func(ShowArgs) (Result, error)
}

func Execute(cmd Command, handlers Handlers) (Result, error) {
	switch cmd.Type {
	case TypeAdd:
		if handlers.Add == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Add(*cmd.Add)
	case TypeDone:
		return runTarget(cmd, handlers.Done)
	case TypeEnable:
		return runTarget(cmd, handlers.Enable)
	case TypeDelete:
		return runTarget(cmd, handlers.Delete)
	case TypeUnshare:
		return runTarget(cmd, handlers.Unshare)
	case TypeDisable:
		if handlers.Disable == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Disable(*cmd.Disable)
	case TypeShare:
		if handlers.Share == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Share(*cmd.Share)
	case TypeShow:
		if handlers.Show == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Show(*cmd.Show)
	default:
		return Result{}, &CommandError{Code: ErrCodeUnknownCommand, Message: fmt.Sprintf("unknown command type: %s", cmd.Type)}
	}
}

func runTarget(cmd Command, handler func(TargetArgs) (Result, error)) (Result, error) {
	if handler == nil {
		return Result{}, missing(cmd.Type)
	}
	return handler(*cmd.Target)
}

func missing(t Type) error {
	return &CommandError{Code: ErrCodeHandlerMissing, Message: fmt.Sprintf("%s handler not configured", t)}
}
